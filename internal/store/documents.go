package store

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/verba/internal/models"
)

// UpsertDocument records the checksum of a source document.
func (db *DB) UpsertDocument(ctx context.Context, d models.DocumentMetadata) error {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO documents (path, checksum, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, d.Path, d.Checksum, d.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert document: %w", err)
	}
	return nil
}

// DeleteDocument forgets a source document. Its highlights are removed by
// the caller through the highlight service.
func (db *DB) DeleteDocument(ctx context.Context, path string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	return nil
}

// DocumentChecksums returns the recorded checksum of every document.
func (db *DB) DocumentChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("store: document checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// ListDocuments returns the recorded documents ordered by path.
func (db *DB) ListDocuments(ctx context.Context) ([]models.DocumentMetadata, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum, updated_at FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()
	out := make([]models.DocumentMetadata, 0)
	for rows.Next() {
		var d models.DocumentMetadata
		if err := rows.Scan(&d.Path, &d.Checksum, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
