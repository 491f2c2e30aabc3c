// Package notify is the user-facing notification collaborator: engine
// services report outcomes here instead of talking to a UI directly.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/verba/internal/events"
)

// Kind categorises a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notifier shows a message to the user.
type Notifier interface {
	Show(kind Kind, text string)
}

// Message is the payload of events.TopicNotification.
type Message struct {
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster logs every message and publishes it on the broker so connected
// views can render it as a toast.
type Broadcaster struct {
	pub    events.Publisher
	logger *slog.Logger
}

// NewBroadcaster creates a notifier publishing to pub. pub may be nil.
func NewBroadcaster(pub events.Publisher, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{pub: pub, logger: logger}
}

// Show implements Notifier.
func (b *Broadcaster) Show(kind Kind, text string) {
	level := slog.LevelInfo
	switch kind {
	case KindError:
		level = slog.LevelError
	case KindWarning:
		level = slog.LevelWarn
	}
	b.logger.Log(context.Background(), level, "notification", slog.String("kind", string(kind)), slog.String("text", text))
	if b.pub == nil {
		return
	}
	b.pub.Publish(events.Event{
		Type: events.TopicNotification,
		Data: Message{Kind: kind, Text: text, Timestamp: time.Now()},
	})
}

// Recorder keeps messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Show implements Notifier.
func (r *Recorder) Show(kind Kind, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Kind: kind, Text: text, Timestamp: time.Now()})
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Count returns how many recorded messages have the given kind.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Kind == kind {
			n++
		}
	}
	return n
}
