package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/models"
)

// CreateHighlight inserts a highlight. A duplicate id is apperr.ErrAlreadyExists.
func (db *DB) CreateHighlight(ctx context.Context, h models.Highlight) error {
	rects, err := json.Marshal(h.Rects)
	if err != nil {
		return fmt.Errorf("store: encode rects: %w", err)
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO highlights (id, document_id, page_number, rects, color, intent, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.DocumentID, h.PageNumber, string(rects), h.Color, h.Intent, h.Text, h.CreatedAt.UTC())
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("store: highlight %s: %w", h.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("store: create highlight: %w", err)
	}
	return nil
}

// DeleteHighlight removes a highlight. Entries and connectors that reference
// it are not touched.
func (db *DB) DeleteHighlight(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM highlights WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete highlight: %w", err)
	}
	return rowsAffected(res, "highlight", id)
}

// ListHighlights returns the highlights of documentID, or of every document
// when documentID is empty, ordered by page then creation.
func (db *DB) ListHighlights(ctx context.Context, documentID string) ([]models.Highlight, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, document_id, page_number, rects, color, intent, text, created_at
		FROM highlights
		WHERE ? = '' OR document_id = ?
		ORDER BY document_id, page_number, created_at, id
	`, documentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: list highlights: %w", err)
	}
	defer rows.Close()

	out := make([]models.Highlight, 0)
	for rows.Next() {
		var (
			h     models.Highlight
			rects string
		)
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.PageNumber, &rects, &h.Color, &h.Intent, &h.Text, &h.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rects), &h.Rects); err != nil {
			return nil, fmt.Errorf("store: decode rects of %s: %w", h.ID, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteDocumentHighlights removes every highlight of documentID.
func (db *DB) DeleteDocumentHighlights(ctx context.Context, documentID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM highlights WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: delete document highlights: %w", err)
	}
	return nil
}
