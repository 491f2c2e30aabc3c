package highlight

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/verba/internal/events"
)

// Sync applies a highlight change made by another instance. Local events are
// ignored: the registry already holds their effect.
func (s *Service) Sync(ctx context.Context, ev events.Event) error {
	if !ev.Remote {
		return nil
	}
	switch ev.Type {
	case events.TopicHighlightCreated:
		hc, err := events.Decode[events.HighlightChanged](ev)
		if err != nil {
			return fmt.Errorf("highlight: decode event: %w", err)
		}
		hs, err := s.store.ListHighlights(ctx, hc.DocumentID)
		if err != nil {
			return fmt.Errorf("highlight: reload %s: %w", hc.DocumentID, err)
		}
		s.reg.LoadDocument(hc.DocumentID, hs)
	case events.TopicHighlightDeleted:
		hc, err := events.Decode[events.HighlightChanged](ev)
		if err != nil {
			return fmt.Errorf("highlight: decode event: %w", err)
		}
		s.reg.Remove(hc.ID)
	case events.TopicDocumentReplaced:
		dr, err := events.Decode[events.DocumentReplaced](ev)
		if err != nil {
			return fmt.Errorf("highlight: decode event: %w", err)
		}
		s.reg.ResetDocument(dr.DocumentID)
	}
	return nil
}

// Watch applies remote highlight changes published on b until ctx is done.
func (s *Service) Watch(ctx context.Context, b *events.Broker) error {
	sub := b.Subscribe(events.TopicHighlightCreated, events.TopicHighlightDeleted, events.TopicDocumentReplaced)
	defer b.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := s.Sync(ctx, ev); err != nil {
				s.logger.Warn("highlight sync failed", slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
			}
		}
	}
}
