package annotation

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/events"
	"github.com/starford/verba/internal/models"
)

// Update applies a partial change coming from outside the canvas (HTTP or
// MCP clients). Positions are clamped like a drag. A marker being dragged
// cannot be moved this way, and a content change ends any local edit.
func (b *Board) Update(ctx context.Context, id string, patch models.AnnotationPatch) (models.Annotation, error) {
	if patch.Empty() {
		return models.Annotation{}, fmt.Errorf("annotation: empty update: %w", apperr.ErrInvalidInput)
	}
	if patch.Color != nil && strings.TrimSpace(*patch.Color) == "" {
		return models.Annotation{}, fmt.Errorf("annotation: color is required: %w", apperr.ErrInvalidInput)
	}

	b.mu.Lock()
	m, ok := b.markers[id]
	if !ok {
		b.mu.Unlock()
		return models.Annotation{}, notFound(id)
	}
	if patch.Position != nil {
		if b.drag != nil && b.drag.id == id {
			b.mu.Unlock()
			return models.Annotation{}, fmt.Errorf("annotation %s is being dragged: %w", id, apperr.ErrConflict)
		}
		page, known := b.pages[pageKey{m.ann.DocumentID, m.ann.PageNumber}]
		p := models.Point{
			X: clamp(patch.Position.X, page.Width-m.size.Width, known),
			Y: clamp(patch.Position.Y, page.Height-m.size.Height, known),
		}
		patch.Position = &p
		m.ann.Position = p
	}
	if patch.Content != nil {
		m.ann.Content = *patch.Content
		m.editing, m.draft = false, ""
	}
	if patch.Color != nil {
		m.ann.Color = *patch.Color
	}
	if patch.Minimized != nil {
		m.ann.Minimized = *patch.Minimized
		m.expanded = !*patch.Minimized
		if !m.expanded {
			m.editing, m.draft = false, ""
		}
	}
	a := m.view().Annotation
	b.mu.Unlock()

	if err := b.store.UpdateAnnotation(ctx, id, patch); err != nil {
		b.persistFailed("update", id, err, "Não foi possível salvar o comentário.")
		return a, fmt.Errorf("annotation: update %s: %w", id, err)
	}
	a = b.touch(id, a)
	b.metrics.AnnotationWrite("update")
	b.publish(events.TopicAnnotationSaved, a)
	return a, nil
}
