package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/verba/internal/annotation"
	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/checklist"
	"github.com/starford/verba/internal/highlight"
	"github.com/starford/verba/internal/models"
)

// Verify *DB satisfies the persistence interfaces the engine consumes.
var (
	_ highlight.Store  = (*DB)(nil)
	_ annotation.Store = (*DB)(nil)
	_ checklist.Store  = (*DB)(nil)
)

// Catalog is the read side used by the API and MCP surfaces for the
// collections the engine only references.
type Catalog interface {
	ListDocuments(ctx context.Context) ([]models.DocumentMetadata, error)
	GetEntry(ctx context.Context, id string) (models.LedgerEntry, error)
	ListGroups(ctx context.Context, processID string) ([]models.EntryGroup, error)
	ListDecisions(ctx context.Context, processID string) ([]models.Decision, error)
	GetRollup(ctx context.Context, processID string) (models.ProcessRollup, error)
	SearchAnnotations(ctx context.Context, query string, limit int) ([]AnnotationHit, error)
}

var _ Catalog = (*DB)(nil)

// AnnotationHit is one annotation content search result.
type AnnotationHit struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	PageNumber int    `json:"page_number"`
	Snippet    string `json:"snippet"`
}

// rowsAffected maps an update that touched nothing to apperr.ErrNotFound.
func rowsAffected(res interface{ RowsAffected() (int64, error) }, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s %s: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s %s: %w", what, id, apperr.ErrNotFound)
	}
	return nil
}

// isConstraint reports whether err is a SQLite constraint failure.
func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
