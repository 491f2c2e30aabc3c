package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/models"
)

// CreateAnnotation inserts an annotation with its connectors in one transaction.
func (db *DB) CreateAnnotation(ctx context.Context, a models.Annotation) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO annotations (id, document_id, page_number, pos_x, pos_y, content, color, minimized, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.DocumentID, a.PageNumber, a.Position.X, a.Position.Y, a.Content, a.Color, a.Minimized,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("store: annotation %s: %w", a.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("store: create annotation: %w", err)
	}
	for i, c := range a.Connectors {
		if err := insertConnector(ctx, tx, a.ID, i, c); err != nil {
			return err
		}
	}
	if err := ftsUpsert(ctx, tx, a.ID, a.Content); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateAnnotation applies the non-nil fields of patch.
func (db *DB) UpdateAnnotation(ctx context.Context, id string, patch models.AnnotationPatch) error {
	if patch.Empty() {
		return nil
	}
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if patch.Position != nil {
		sets = append(sets, "pos_x = ?", "pos_y = ?")
		args = append(args, patch.Position.X, patch.Position.Y)
	}
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *patch.Color)
	}
	if patch.Minimized != nil {
		sets = append(sets, "minimized = ?")
		args = append(args, *patch.Minimized)
	}
	args = append(args, id)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE annotations SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("store: update annotation: %w", err)
	}
	if err := rowsAffected(res, "annotation", id); err != nil {
		return err
	}
	if patch.Content != nil {
		if err := ftsUpsert(ctx, tx, id, *patch.Content); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteAnnotation removes an annotation; its connectors go with it.
func (db *DB) DeleteAnnotation(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete annotation: %w", err)
	}
	if err := rowsAffected(res, "annotation", id); err != nil {
		return err
	}
	ftsDelete(ctx, tx, id)
	return tx.Commit()
}

// AddConnector appends a connector to an annotation.
func (db *DB) AddConnector(ctx context.Context, annotationID string, c models.Connector) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var seq int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq) + 1, 0) FROM connectors WHERE annotation_id = ?
	`, annotationID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("store: next connector seq: %w", err)
	}
	if err := insertConnector(ctx, tx, annotationID, seq, c); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE annotations SET updated_at = ? WHERE id = ?`, time.Now().UTC(), annotationID); err != nil {
		return fmt.Errorf("store: touch annotation: %w", err)
	}
	return tx.Commit()
}

func insertConnector(ctx context.Context, tx *sql.Tx, annotationID string, seq int, c models.Connector) error {
	target, err := json.Marshal(c.Target)
	if err != nil {
		return fmt.Errorf("store: encode connector target: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO connectors (id, annotation_id, seq, type, target, highlight_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, annotationID, seq, string(c.Type), string(target), c.HighlightID)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("store: connector %s on %s: %w", c.ID, annotationID, apperr.ErrConflict)
		}
		return fmt.Errorf("store: insert connector: %w", err)
	}
	return nil
}

// ListAnnotations returns the annotations of documentID, or of every document
// when documentID is empty, with their connectors in insertion order.
func (db *DB) ListAnnotations(ctx context.Context, documentID string) ([]models.Annotation, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, document_id, page_number, pos_x, pos_y, content, color, minimized, created_at, updated_at
		FROM annotations
		WHERE ? = '' OR document_id = ?
		ORDER BY document_id, page_number, created_at, id
	`, documentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: list annotations: %w", err)
	}
	out := make([]models.Annotation, 0)
	index := make(map[string]int)
	for rows.Next() {
		var a models.Annotation
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.PageNumber, &a.Position.X, &a.Position.Y,
			&a.Content, &a.Color, &a.Minimized, &a.CreatedAt, &a.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		a.Connectors = []models.Connector{}
		index[a.ID] = len(out)
		out = append(out, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.annotation_id, c.type, c.target, c.highlight_id
		FROM connectors c
		JOIN annotations a ON a.id = c.annotation_id
		WHERE ? = '' OR a.document_id = ?
		ORDER BY c.annotation_id, c.seq
	`, documentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: list connectors: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var (
			c            models.Connector
			annotationID string
			typ, target  string
		)
		if err := crows.Scan(&c.ID, &annotationID, &typ, &target, &c.HighlightID); err != nil {
			return nil, err
		}
		c.Type = models.ConnectorType(typ)
		if err := json.Unmarshal([]byte(target), &c.Target); err != nil {
			return nil, fmt.Errorf("store: decode connector %s: %w", c.ID, err)
		}
		if i, ok := index[annotationID]; ok {
			out[i].Connectors = append(out[i].Connectors, c)
		}
	}
	return out, crows.Err()
}
