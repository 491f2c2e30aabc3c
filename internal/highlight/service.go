package highlight

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/starford/verba/internal/anchor"
	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/events"
	"github.com/starford/verba/internal/metrics"
	"github.com/starford/verba/internal/models"
	"github.com/starford/verba/internal/notify"
)

// Store is the persistence collaborator for highlights.
type Store interface {
	CreateHighlight(ctx context.Context, h models.Highlight) error
	DeleteHighlight(ctx context.Context, id string) error
	ListHighlights(ctx context.Context, documentID string) ([]models.Highlight, error)
	DeleteDocumentHighlights(ctx context.Context, documentID string) error
}

// Draft is a committed selection waiting to become highlights.
type Draft struct {
	DocumentID string
	// Anchor is nil when the engine produced none; Text is then the only
	// record of what was selected.
	Anchor *anchor.Anchor
	Text   string
	// Rects groups the rendered selection rectangles by page number.
	Rects  map[int][]models.Rect
	Color  string
	Intent string
}

// Service couples the registry with persistence and change notifications.
type Service struct {
	reg      *Registry
	store    Store
	pub      events.Publisher
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService creates a highlight service.
func NewService(reg *Registry, store Store, pub events.Publisher, notifier notify.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reg: reg, store: store, pub: pub, notifier: notifier, logger: logger}
}

// SetMetrics records commits and persistence failures on m.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Registry exposes the live registry for read-only consumers.
func (s *Service) Registry() *Registry { return s.reg }

// Hydrate loads every persisted highlight into the registry.
func (s *Service) Hydrate(ctx context.Context) error {
	hs, err := s.store.ListHighlights(ctx, "")
	if err != nil {
		return fmt.Errorf("highlight: hydrate: %w", err)
	}
	s.reg.Load(hs)
	s.logger.Info("highlights loaded", slog.Int("count", len(hs)))
	return nil
}

// Commit turns a selection draft into one highlight per page. Local state is
// updated first; a persistence failure is reported and returned but the
// highlights stay in the registry.
func (s *Service) Commit(ctx context.Context, d Draft) ([]models.Highlight, error) {
	if d.DocumentID == "" {
		return nil, fmt.Errorf("highlight: document id is required: %w", apperr.ErrInvalidInput)
	}
	if len(d.Rects) == 0 {
		return nil, fmt.Errorf("highlight: selection has no geometry: %w", apperr.ErrInvalidInput)
	}
	if d.Anchor == nil && d.Text == "" {
		return nil, fmt.Errorf("highlight: no anchor and no selected text: %w", apperr.ErrInvalidInput)
	}

	pages := make([]int, 0, len(d.Rects))
	for p := range d.Rects {
		pages = append(pages, p)
	}
	slices.Sort(pages)
	if d.Anchor != nil {
		for _, p := range pages {
			if !slices.Contains(d.Anchor.Pages, p) {
				return nil, fmt.Errorf("highlight: page %d outside the selection: %w", p, apperr.ErrInvalidInput)
			}
		}
	}

	var created []models.Highlight
	for _, p := range pages {
		id, err := s.reg.Add(models.Highlight{
			DocumentID: d.DocumentID,
			PageNumber: p,
			Rects:      d.Rects[p],
			Color:      d.Color,
			Intent:     d.Intent,
			Text:       d.Text,
		})
		if err != nil {
			return created, err
		}
		h, _ := s.reg.Lookup(id)
		created = append(created, h)
	}

	for _, h := range created {
		if err := s.store.CreateHighlight(ctx, h); err != nil {
			s.logger.Error("persist highlight failed", slog.String("id", h.ID), slog.String("error", err.Error()))
			s.metrics.PersistenceFailed("highlight", "create")
			s.notifier.Show(notify.KindError, "Não foi possível salvar o destaque.")
			return created, fmt.Errorf("highlight: persist %s: %w", h.ID, err)
		}
		s.publish(events.TopicHighlightCreated, h)
	}
	s.metrics.HighlightCommitted(len(created))
	return created, nil
}

// Remove deletes a highlight. Entities referencing it are left untouched.
func (s *Service) Remove(ctx context.Context, id string) error {
	h, ok := s.reg.Lookup(id)
	if !ok {
		return fmt.Errorf("highlight %s: %w", id, apperr.ErrNotFound)
	}
	s.reg.Remove(id)
	if err := s.store.DeleteHighlight(ctx, id); err != nil {
		s.logger.Error("delete highlight failed", slog.String("id", id), slog.String("error", err.Error()))
		s.metrics.PersistenceFailed("highlight", "delete")
		s.notifier.Show(notify.KindError, "Não foi possível remover o destaque.")
		return fmt.Errorf("highlight: delete %s: %w", id, err)
	}
	s.publish(events.TopicHighlightDeleted, h)
	return nil
}

// ResetDocument drops every highlight of a replaced document.
func (s *Service) ResetDocument(ctx context.Context, documentID string) ([]string, error) {
	removed := s.reg.ResetDocument(documentID)
	if err := s.store.DeleteDocumentHighlights(ctx, documentID); err != nil {
		return removed, fmt.Errorf("highlight: reset %s: %w", documentID, err)
	}
	if s.pub != nil {
		s.pub.Publish(events.Event{
			Type: events.TopicDocumentReplaced,
			Data: events.DocumentReplaced{DocumentID: documentID, RemovedHighlights: nonNil(removed)},
		})
	}
	s.metrics.DocumentReplaced()
	s.logger.Info("document highlights reset", slog.String("document", documentID), slog.Int("removed", len(removed)))
	return removed, nil
}

func (s *Service) publish(t events.Topic, h models.Highlight) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(events.Event{
		Type: t,
		Data: events.HighlightChanged{ID: h.ID, DocumentID: h.DocumentID, PageNumber: h.PageNumber},
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
