//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS annotations_fts USING fts5(
			id UNINDEXED,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, id, content string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM annotations_fts WHERE id = ?`, id)
	if _, err := tx.ExecContext(ctx, `INSERT INTO annotations_fts (id, content) VALUES (?, ?)`, id, content); err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, id string) {
	_, _ = tx.ExecContext(ctx, `DELETE FROM annotations_fts WHERE id = ?`, id)
}

// SearchAnnotations runs an FTS5 query over annotation content.
func (db *DB) SearchAnnotations(ctx context.Context, query string, limit int) ([]AnnotationHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.id, a.document_id, a.page_number,
		       snippet(annotations_fts, 1, '<b>', '</b>', '...', 32)
		FROM annotations_fts
		JOIN annotations a ON a.id = annotations_fts.id
		WHERE annotations_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	out := make([]AnnotationHit, 0)
	for rows.Next() {
		var h AnnotationHit
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.PageNumber, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
