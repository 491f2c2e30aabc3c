// Package annotation manages comment markers placed on document pages: their
// expand and edit state, drag positioning, connectors and colors.
package annotation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/events"
	"github.com/starford/verba/internal/highlight"
	"github.com/starford/verba/internal/metrics"
	"github.com/starford/verba/internal/models"
	"github.com/starford/verba/internal/notify"
)

// Store is the persistence collaborator for annotations.
type Store interface {
	CreateAnnotation(ctx context.Context, a models.Annotation) error
	UpdateAnnotation(ctx context.Context, id string, patch models.AnnotationPatch) error
	DeleteAnnotation(ctx context.Context, id string) error
	AddConnector(ctx context.Context, annotationID string, c models.Connector) error
	ListAnnotations(ctx context.Context, documentID string) ([]models.Annotation, error)
}

// DefaultMarkerSize is the collapsed marker footprint in page units.
var DefaultMarkerSize = models.Size{Width: 32, Height: 32}

// Mode is the visible state of a marker.
type Mode string

const (
	ModeCollapsed Mode = "collapsed"
	ModeViewing   Mode = "viewing"
	ModeEditing   Mode = "editing"
)

// Marker is the interactive state of one annotation.
type Marker struct {
	Annotation models.Annotation `json:"annotation"`
	Mode       Mode              `json:"mode"`
	Draft      string            `json:"draft,omitempty"`
	Size       models.Size       `json:"size"`
}

type marker struct {
	ann      models.Annotation
	expanded bool
	editing  bool
	draft    string
	size     models.Size
	// releasedAt is when a drag with net movement ended. An Activate within
	// clickAfterDrag of it belongs to that drag and is swallowed.
	releasedAt time.Time
}

func (m *marker) mode() Mode {
	switch {
	case !m.expanded:
		return ModeCollapsed
	case m.editing:
		return ModeEditing
	default:
		return ModeViewing
	}
}

func (m *marker) view() Marker {
	a := m.ann
	a.Connectors = slices.Clone(m.ann.Connectors)
	return Marker{Annotation: a, Mode: m.mode(), Draft: m.draft, Size: m.size}
}

type pageKey struct {
	doc  string
	page int
}

// Option configures a Board.
type Option func(*Board)

// WithMarkerSize sets the default marker footprint used for clamping.
func WithMarkerSize(s models.Size) Option {
	return func(b *Board) {
		if s.Width > 0 && s.Height > 0 {
			b.markerSize = s
		}
	}
}

// WithHighlights lets box connectors take their geometry from a highlight.
func WithHighlights(l highlight.Lookup) Option {
	return func(b *Board) { b.highlights = l }
}

// WithMetrics records annotation writes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Board) { b.metrics = m }
}

// WithLogger sets the board logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Board) { b.logger = l }
}

// Board holds every loaded marker. At most one drag session and one connector
// authoring session exist per board.
type Board struct {
	store    Store
	pub      events.Publisher
	notifier notify.Notifier

	markerSize models.Size
	highlights highlight.Lookup
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	markers   map[string]*marker
	pages     map[pageKey]models.Size
	drag      *DragSession
	authoring *authoring

	closed atomic.Bool
}

// NewBoard creates an empty board.
func NewBoard(store Store, pub events.Publisher, notifier notify.Notifier, opts ...Option) *Board {
	b := &Board{
		store:      store,
		pub:        pub,
		notifier:   notifier,
		markerSize: DefaultMarkerSize,
		logger:     slog.Default(),
		now:        time.Now,
		markers:    make(map[string]*marker),
		pages:      make(map[pageKey]models.Size),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Close marks the board as gone. Persistence results that arrive afterwards
// are dropped instead of being applied.
func (b *Board) Close() {
	b.closed.Store(true)
	b.mu.Lock()
	b.drag = nil
	b.authoring = nil
	b.mu.Unlock()
}

// Load replaces the markers of documentID with the persisted annotations.
// An empty documentID replaces every marker. Minimized annotations start
// collapsed.
func (b *Board) Load(ctx context.Context, documentID string) error {
	anns, err := b.store.ListAnnotations(ctx, documentID)
	if err != nil {
		return fmt.Errorf("annotation: load %s: %w", documentID, err)
	}
	if b.closed.Load() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, m := range b.markers {
		if documentID == "" || m.ann.DocumentID == documentID {
			delete(b.markers, id)
		}
	}
	for _, a := range anns {
		b.markers[a.ID] = &marker{ann: a, expanded: !a.Minimized, size: b.markerSize}
	}
	return nil
}

// SetPageSize records the unscaled dimensions of a page for clamping.
func (b *Board) SetPageSize(documentID string, page int, size models.Size) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[pageKey{documentID, page}] = size
}

// SetMarkerSize overrides the footprint of one marker, e.g. once expanded.
func (b *Board) SetMarkerSize(id string, size models.Size) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markers[id]
	if !ok {
		return notFound(id)
	}
	m.size = size
	return nil
}

// Create adds a new annotation. It starts expanded unless Minimized is set.
func (b *Board) Create(ctx context.Context, a models.Annotation) (models.Annotation, error) {
	if a.DocumentID == "" {
		return models.Annotation{}, fmt.Errorf("annotation: document id is required: %w", apperr.ErrInvalidInput)
	}
	if a.PageNumber < 1 {
		return models.Annotation{}, fmt.Errorf("annotation: page number %d: %w", a.PageNumber, apperr.ErrInvalidInput)
	}
	now := b.now()
	a.ID = uuid.NewString()
	a.CreatedAt, a.UpdatedAt = now, now
	connectors := make([]models.Connector, 0, len(a.Connectors))
	for _, c := range a.Connectors {
		c, err := b.prepareConnector(c)
		if err != nil {
			return models.Annotation{}, fmt.Errorf("annotation: create: %w", err)
		}
		connectors = append(connectors, c)
	}
	a.Connectors = connectors

	b.mu.Lock()
	b.markers[a.ID] = &marker{ann: a, expanded: !a.Minimized, size: b.markerSize}
	b.mu.Unlock()

	if err := b.store.CreateAnnotation(ctx, a); err != nil {
		b.persistFailed("create", a.ID, err, "Não foi possível salvar o comentário.")
		return a, fmt.Errorf("annotation: create %s: %w", a.ID, err)
	}
	b.metrics.AnnotationWrite("create")
	b.publish(events.TopicAnnotationSaved, a)
	return a, nil
}

// Get returns the state of one marker.
func (b *Board) Get(id string) (Marker, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markers[id]
	if !ok {
		return Marker{}, false
	}
	return m.view(), true
}

// ByDocument returns the markers of documentID ordered by page then creation.
func (b *Board) ByDocument(documentID string) []Marker {
	return b.filter(func(a models.Annotation) bool { return a.DocumentID == documentID })
}

// ByPage returns the markers on one page of documentID.
func (b *Board) ByPage(documentID string, page int) []Marker {
	return b.filter(func(a models.Annotation) bool { return a.DocumentID == documentID && a.PageNumber == page })
}

func (b *Board) filter(keep func(models.Annotation) bool) []Marker {
	b.mu.Lock()
	out := make([]Marker, 0)
	for _, m := range b.markers {
		if keep(m.ann) {
			out = append(out, m.view())
		}
	}
	b.mu.Unlock()
	slices.SortFunc(out, func(x, y Marker) int {
		if x.Annotation.PageNumber != y.Annotation.PageNumber {
			return x.Annotation.PageNumber - y.Annotation.PageNumber
		}
		if c := x.Annotation.CreatedAt.Compare(y.Annotation.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.Annotation.ID, y.Annotation.ID)
	})
	return out
}

// Activate handles a primary activation of the marker. It toggles between
// collapsed and expanded and reports whether it did. The activation that
// ends a drag with net movement is swallowed.
func (b *Board) Activate(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	m, ok := b.markers[id]
	if !ok {
		b.mu.Unlock()
		return false, notFound(id)
	}
	if b.drag != nil && b.drag.id == id {
		b.mu.Unlock()
		return false, nil
	}
	if !m.releasedAt.IsZero() {
		released := m.releasedAt
		m.releasedAt = time.Time{}
		if b.now().Sub(released) <= clickAfterDrag {
			b.mu.Unlock()
			return false, nil
		}
	}
	m.expanded = !m.expanded
	if !m.expanded {
		m.editing, m.draft = false, ""
	}
	minimized := !m.expanded
	m.ann.Minimized = minimized
	b.mu.Unlock()

	if err := b.store.UpdateAnnotation(ctx, id, models.AnnotationPatch{Minimized: &minimized}); err != nil {
		b.logger.Warn("persist marker expansion failed", slog.String("id", id), slog.String("error", err.Error()))
		b.metrics.PersistenceFailed("annotation", "minimize")
	}
	return true, nil
}

// BeginEdit enters editing with the current content as draft.
func (b *Board) BeginEdit(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markers[id]
	if !ok {
		return notFound(id)
	}
	if !m.expanded {
		return fmt.Errorf("annotation %s is collapsed: %w", id, apperr.ErrConflict)
	}
	if !m.editing {
		m.editing = true
		m.draft = m.ann.Content
	}
	return nil
}

// SetDraft replaces the draft content of a marker being edited.
func (b *Board) SetDraft(id, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markers[id]
	if !ok {
		return notFound(id)
	}
	if !m.editing {
		return fmt.Errorf("annotation %s is not being edited: %w", id, apperr.ErrConflict)
	}
	m.draft = content
	return nil
}

// SaveEdit commits the draft as the new content and returns to viewing.
// On persistence failure the new content stays local and the error is
// reported to the user.
func (b *Board) SaveEdit(ctx context.Context, id string) (models.Annotation, error) {
	b.mu.Lock()
	m, ok := b.markers[id]
	if !ok {
		b.mu.Unlock()
		return models.Annotation{}, notFound(id)
	}
	if !m.editing {
		b.mu.Unlock()
		return models.Annotation{}, fmt.Errorf("annotation %s is not being edited: %w", id, apperr.ErrConflict)
	}
	content := m.draft
	m.ann.Content = content
	m.editing, m.draft = false, ""
	a := m.view().Annotation
	b.mu.Unlock()

	if err := b.store.UpdateAnnotation(ctx, id, models.AnnotationPatch{Content: &content}); err != nil {
		b.persistFailed("content", id, err, "Não foi possível salvar o comentário.")
		return a, fmt.Errorf("annotation: save %s: %w", id, err)
	}
	a = b.touch(id, a)
	b.metrics.AnnotationWrite("content")
	b.publish(events.TopicAnnotationSaved, a)
	return a, nil
}

// CancelEdit drops the draft and returns to viewing without persisting.
func (b *Board) CancelEdit(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markers[id]
	if !ok {
		return notFound(id)
	}
	m.editing, m.draft = false, ""
	return nil
}

// SetColor changes the marker color and persists it.
func (b *Board) SetColor(ctx context.Context, id, color string) (models.Annotation, error) {
	if strings.TrimSpace(color) == "" {
		return models.Annotation{}, fmt.Errorf("annotation: color is required: %w", apperr.ErrInvalidInput)
	}
	b.mu.Lock()
	m, ok := b.markers[id]
	if !ok {
		b.mu.Unlock()
		return models.Annotation{}, notFound(id)
	}
	m.ann.Color = color
	a := m.view().Annotation
	b.mu.Unlock()

	if err := b.store.UpdateAnnotation(ctx, id, models.AnnotationPatch{Color: &color}); err != nil {
		b.persistFailed("color", id, err, "Não foi possível alterar a cor do comentário.")
		return a, fmt.Errorf("annotation: color %s: %w", id, err)
	}
	a = b.touch(id, a)
	b.metrics.AnnotationWrite("color")
	b.publish(events.TopicAnnotationSaved, a)
	return a, nil
}

// Delete removes the annotation with its connectors. Highlights referenced by
// the connectors are left alone.
func (b *Board) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	m, ok := b.markers[id]
	if !ok {
		b.mu.Unlock()
		return notFound(id)
	}
	b.forgetLocked(id)
	a := m.ann
	b.mu.Unlock()

	if err := b.store.DeleteAnnotation(ctx, id); err != nil {
		b.persistFailed("delete", id, err, "Não foi possível excluir o comentário.")
		return fmt.Errorf("annotation: delete %s: %w", id, err)
	}
	b.metrics.AnnotationWrite("delete")
	b.publish(events.TopicAnnotationDeleted, a)
	return nil
}

// touch stamps UpdatedAt after a successful write, unless the board closed or
// the marker went away in the meantime.
func (b *Board) touch(id string, a models.Annotation) models.Annotation {
	if b.closed.Load() {
		return a
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markers[id]
	if !ok {
		return a
	}
	m.ann.UpdatedAt = b.now()
	return m.view().Annotation
}

func (b *Board) persistFailed(op, id string, err error, text string) {
	b.logger.Error("persist annotation failed",
		slog.String("operation", op),
		slog.String("id", id),
		slog.String("error", err.Error()),
	)
	b.metrics.PersistenceFailed("annotation", op)
	if b.closed.Load() {
		return
	}
	b.notifier.Show(notify.KindError, text)
}

func (b *Board) publish(t events.Topic, a models.Annotation) {
	if b.pub == nil || b.closed.Load() {
		return
	}
	b.pub.Publish(events.Event{Type: t, Data: events.AnnotationChanged{ID: a.ID, DocumentID: a.DocumentID}})
}

func notFound(id string) error {
	return fmt.Errorf("annotation %s: %w", id, apperr.ErrNotFound)
}
