// Package docwatch keeps the recorded document checksums in step with the
// documents directory. A document whose content changes is a replacement:
// its highlights no longer line up with the text and are reset.
package docwatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/verba/internal/models"
	"github.com/starford/verba/internal/storage"
)

// Change kinds passed to Callback.
const (
	KindCreated  = "created"
	KindReplaced = "replaced"
	KindDeleted  = "deleted"
)

// Index records the last seen checksum of every document.
type Index interface {
	DocumentChecksums(ctx context.Context) (map[string]string, error)
	UpsertDocument(ctx context.Context, d models.DocumentMetadata) error
	DeleteDocument(ctx context.Context, path string) error
}

// Resetter drops the highlights of a replaced or removed document.
type Resetter interface {
	ResetDocument(ctx context.Context, documentID string) ([]string, error)
}

// Callback is called after each applied change.
type Callback func(kind, path string)

// Syncer reconciles Docs against Index.
type Syncer struct {
	Index    Index
	Docs     storage.Provider
	Reset    Resetter
	Logger   *slog.Logger
	OnChange Callback
}

func (s *Syncer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Syncer) notify(kind, path string) {
	if s.OnChange != nil {
		s.OnChange(kind, path)
	}
}

// Sync walks the documents directory and brings the index up to date:
//   - new documents are recorded
//   - documents whose checksum changed are recorded and their highlights reset
//   - documents gone from disk are forgotten and their highlights reset
func (s *Syncer) Sync(ctx context.Context) error {
	metas, err := s.Docs.List("")
	if err != nil {
		return fmt.Errorf("docwatch: list: %w", err)
	}
	recorded, err := s.Index.DocumentChecksums(ctx)
	if err != nil {
		return fmt.Errorf("docwatch: checksums: %w", err)
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		prev, known := recorded[m.Path]
		if known && prev == m.Checksum {
			continue
		}
		if err := s.record(ctx, m, known); err != nil {
			s.logger().Warn("sync: record failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		}
	}

	for p := range recorded {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := s.forget(ctx, p); err != nil {
			s.logger().Warn("sync: forget failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
	return nil
}

// Apply re-examines one document, e.g. after a file event or an upload.
func (s *Syncer) Apply(ctx context.Context, path string) error {
	recorded, err := s.Index.DocumentChecksums(ctx)
	if err != nil {
		return err
	}
	prev, known := recorded[path]
	m, err := s.Docs.Stat(path)
	if err != nil {
		if known {
			return s.forget(ctx, path)
		}
		return nil
	}
	if known && prev == m.Checksum {
		return nil
	}
	return s.record(ctx, m, known)
}

func (s *Syncer) record(ctx context.Context, m models.DocumentMetadata, replaced bool) error {
	if err := s.Index.UpsertDocument(ctx, m); err != nil {
		return err
	}
	if !replaced {
		s.logger().Debug("document recorded", slog.String("path", m.Path))
		s.notify(KindCreated, m.Path)
		return nil
	}
	removed, err := s.Reset.ResetDocument(ctx, m.Path)
	if err != nil {
		return err
	}
	s.logger().Info("document replaced",
		slog.String("path", m.Path),
		slog.Int("highlights_removed", len(removed)))
	s.notify(KindReplaced, m.Path)
	return nil
}

func (s *Syncer) forget(ctx context.Context, path string) error {
	if err := s.Index.DeleteDocument(ctx, path); err != nil {
		return err
	}
	if _, err := s.Reset.ResetDocument(ctx, path); err != nil {
		return err
	}
	s.logger().Info("document removed", slog.String("path", path))
	s.notify(KindDeleted, path)
	return nil
}
