// Package events implements the typed publish/subscribe broker that lets
// independent views re-derive their data when the engine mutates state.
package events

import (
	"encoding/json"
	"fmt"
)

// Topic names an event stream.
type Topic string

const (
	// TopicCollectionChanged is published after any checklist or entry-group
	// mutation; subscribers re-pull the authoritative entry collection.
	TopicCollectionChanged Topic = "collection-changed"
	TopicHighlightCreated  Topic = "highlight.created"
	TopicHighlightDeleted  Topic = "highlight.deleted"
	TopicAnnotationSaved   Topic = "annotation.saved"
	TopicAnnotationDeleted Topic = "annotation.deleted"
	TopicDocumentReplaced  Topic = "document.replaced"
	TopicNotification      Topic = "notification"
)

// Event is a single broadcast message.
type Event struct {
	Type Topic `json:"type"`
	Data any   `json:"data"`
	// Remote is set on events received from another instance through a relay,
	// so they are not forwarded back out.
	Remote bool `json:"-"`
}

// CollectionChanged is the payload of TopicCollectionChanged.
type CollectionChanged struct {
	ProcessID string `json:"process_id"`
	EntryID   string `json:"entry_id,omitempty"`
	Reason    string `json:"reason"`
}

// HighlightChanged is the payload of the highlight topics.
type HighlightChanged struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	PageNumber int    `json:"page_number"`
}

// AnnotationChanged is the payload of the annotation topics.
type AnnotationChanged struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
}

// DocumentReplaced is the payload of TopicDocumentReplaced.
type DocumentReplaced struct {
	DocumentID        string   `json:"document_id"`
	RemovedHighlights []string `json:"removed_highlights"`
}

// Publisher is the write side of the broker, as seen by engine services.
type Publisher interface {
	Publish(event Event)
}

// Decode extracts a typed payload from an event. Local events carry the value
// itself; relayed events carry raw JSON.
func Decode[T any](ev Event) (T, error) {
	var out T
	switch d := ev.Data.(type) {
	case T:
		return d, nil
	case *T:
		if d == nil {
			return out, fmt.Errorf("events: nil %s payload", ev.Type)
		}
		return *d, nil
	case json.RawMessage:
		if err := json.Unmarshal(d, &out); err != nil {
			return out, fmt.Errorf("events: decode %s: %w", ev.Type, err)
		}
		return out, nil
	default:
		raw, err := json.Marshal(d)
		if err != nil {
			return out, fmt.Errorf("events: encode %s: %w", ev.Type, err)
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, fmt.Errorf("events: decode %s: %w", ev.Type, err)
		}
		return out, nil
	}
}
