//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search uses LIKE on annotations.content.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _, _ string) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) {}

// SearchAnnotations runs a LIKE search over annotation content.
func (db *DB) SearchAnnotations(ctx context.Context, query string, limit int) ([]AnnotationHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, document_id, page_number, substr(content, 1, 200)
		FROM annotations
		WHERE content LIKE ?
		ORDER BY updated_at DESC, id
		LIMIT ?
	`, "%"+query+"%", limit)
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
