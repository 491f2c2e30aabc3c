package annotation

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/events"
	"github.com/starford/verba/internal/models"
)

// clickAfterDrag bounds how late the click that ends a drag may arrive.
const clickAfterDrag = 500 * time.Millisecond

// DragSession tracks one pointer drag of a marker. It exists from pointer-down
// to Release; moves are local and only Release persists.
type DragSession struct {
	board  *Board
	id     string
	offset models.Point
	origin models.Point
	pos    models.Point
	done   bool
}

// PointerDown starts dragging marker id. pointer and markerBox are in screen
// units; the pointer offset inside the box is kept for the whole drag. It
// fails when the pointer is over an interactive child of the marker or when
// another drag is in progress.
func (b *Board) PointerDown(id string, pointer models.Point, markerBox models.Rect, overControl bool) (*DragSession, error) {
	if overControl {
		return nil, fmt.Errorf("annotation %s: pointer over a control: %w", id, apperr.ErrConflict)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markers[id]
	if !ok {
		return nil, notFound(id)
	}
	if b.drag != nil {
		return nil, fmt.Errorf("annotation %s: drag of %s in progress: %w", id, b.drag.id, apperr.ErrConflict)
	}
	m.releasedAt = time.Time{}
	s := &DragSession{
		board:  b,
		id:     id,
		offset: models.Point{X: pointer.X - markerBox.X, Y: pointer.Y - markerBox.Y},
		origin: m.ann.Position,
		pos:    m.ann.Position,
	}
	b.drag = s
	return s, nil
}

// ActiveDrag returns the id of the marker being dragged, if any.
func (b *Board) ActiveDrag() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drag == nil {
		return "", false
	}
	return b.drag.id, true
}

// ID returns the dragged marker id.
func (s *DragSession) ID() string { return s.id }

// Move places the marker under the pointer. parentOrigin is the page origin
// in screen units and scale the current zoom. The position is clamped to
// [0, page - marker] on both axes; when the page size is unknown only the
// lower bound applies.
func (s *DragSession) Move(pointer, parentOrigin models.Point, scale float64) (models.Point, error) {
	if scale <= 0 {
		return models.Point{}, fmt.Errorf("annotation: scale %v: %w", scale, apperr.ErrInvalidInput)
	}
	b := s.board
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.done || b.drag != s {
		return s.pos, fmt.Errorf("annotation %s: drag ended: %w", s.id, apperr.ErrConflict)
	}
	m, ok := b.markers[s.id]
	if !ok {
		return s.pos, notFound(s.id)
	}

	p := models.Point{
		X: (pointer.X - parentOrigin.X - s.offset.X) / scale,
		Y: (pointer.Y - parentOrigin.Y - s.offset.Y) / scale,
	}
	page, known := b.pages[pageKey{m.ann.DocumentID, m.ann.PageNumber}]
	p.X = clamp(p.X, page.Width-m.size.Width, known)
	p.Y = clamp(p.Y, page.Height-m.size.Height, known)

	s.pos = p
	m.ann.Position = p
	return p, nil
}

// Release ends the drag. When the marker moved, the final position is
// persisted once and the activation that follows is suppressed. A position
// write failure is reported but the marker stays where it was dropped.
func (s *DragSession) Release(ctx context.Context) (models.Point, error) {
	b := s.board
	b.mu.Lock()
	if s.done || b.drag != s {
		b.mu.Unlock()
		return s.pos, fmt.Errorf("annotation %s: drag ended: %w", s.id, apperr.ErrConflict)
	}
	s.done = true
	b.drag = nil
	m, ok := b.markers[s.id]
	if !ok {
		b.mu.Unlock()
		return s.pos, notFound(s.id)
	}
	moved := s.pos != s.origin
	if moved {
		m.releasedAt = b.now()
	}
	pos := s.pos
	a := m.view().Annotation
	b.mu.Unlock()

	if !moved {
		return pos, nil
	}
	if err := b.store.UpdateAnnotation(ctx, s.id, models.AnnotationPatch{Position: &pos}); err != nil {
		b.persistFailed("move", s.id, err, "Não foi possível salvar a posição do comentário.")
		return pos, fmt.Errorf("annotation: move %s: %w", s.id, err)
	}
	a = b.touch(s.id, a)
	b.metrics.AnnotationWrite("move")
	b.publish(events.TopicAnnotationSaved, a)
	return pos, nil
}

func clamp(v, upper float64, bounded bool) float64 {
	if bounded && v > upper {
		v = upper
	}
	if v < 0 {
		v = 0
	}
	return v
}
