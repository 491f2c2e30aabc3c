package annotation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/verba/internal/events"
	"github.com/starford/verba/internal/models"
)

// Sync applies an annotation change made by another instance. Local events
// are ignored. A marker being dragged here keeps its local position.
func (b *Board) Sync(ctx context.Context, ev events.Event) error {
	if !ev.Remote || b.closed.Load() {
		return nil
	}
	if ev.Type != events.TopicAnnotationSaved && ev.Type != events.TopicAnnotationDeleted {
		return nil
	}
	ac, err := events.Decode[events.AnnotationChanged](ev)
	if err != nil {
		return fmt.Errorf("annotation: decode event: %w", err)
	}
	if ev.Type == events.TopicAnnotationDeleted {
		b.forget(ac.ID)
		return nil
	}

	anns, err := b.store.ListAnnotations(ctx, ac.DocumentID)
	if err != nil {
		return fmt.Errorf("annotation: reload %s: %w", ac.DocumentID, err)
	}
	for _, a := range anns {
		if a.ID == ac.ID {
			b.apply(a)
			return nil
		}
	}
	b.forget(ac.ID)
	return nil
}

// apply installs a stored annotation, keeping the local interaction state of
// an existing marker.
func (b *Board) apply(a models.Annotation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markers[a.ID]
	if !ok {
		b.markers[a.ID] = &marker{ann: a, expanded: !a.Minimized, size: b.markerSize}
		return
	}
	if b.drag != nil && b.drag.id == a.ID {
		a.Position = m.ann.Position
	}
	m.ann = a
	m.expanded = !a.Minimized
	if !m.expanded {
		m.editing, m.draft = false, ""
	}
}

func (b *Board) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forgetLocked(id)
}

// forgetLocked drops marker id and any session on it. b.mu must be held.
func (b *Board) forgetLocked(id string) {
	delete(b.markers, id)
	if b.drag != nil && b.drag.id == id {
		b.drag = nil
	}
	if b.authoring != nil && b.authoring.id == id {
		b.authoring = nil
	}
}

// Watch applies remote annotation changes published on eb until ctx is done.
func (b *Board) Watch(ctx context.Context, eb *events.Broker) error {
	sub := eb.Subscribe(events.TopicAnnotationSaved, events.TopicAnnotationDeleted)
	defer eb.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := b.Sync(ctx, ev); err != nil {
				b.logger.Warn("annotation sync failed", slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
			}
		}
	}
}
