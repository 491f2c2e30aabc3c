package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(8)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	sub := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(sub)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}

func TestPublishCollectionChanged(t *testing.T) {
	b := NewBroker(8)
	defer b.Close()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.PublishCollectionChanged("proc-1", "entry-1", "advance")

	select {
	case ev := <-sub.C:
		if ev.Type != TopicCollectionChanged {
			t.Fatalf("type = %q", ev.Type)
		}
		got, err := Decode[CollectionChanged](ev)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.ProcessID != "proc-1" || got.EntryID != "entry-1" || got.Reason != "advance" {
			t.Errorf("payload = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestTopicFilter(t *testing.T) {
	b := NewBroker(8)
	defer b.Close()
	sub := b.Subscribe(TopicHighlightDeleted)
	defer b.Unsubscribe(sub)

	b.PublishCollectionChanged("p", "", "bulk")
	b.Publish(Event{Type: TopicHighlightDeleted, Data: HighlightChanged{ID: "h1"}})

	select {
	case ev := <-sub.C:
		if ev.Type != TopicHighlightDeleted {
			t.Fatalf("filtered subscriber got %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestDecodeRelayedPayload(t *testing.T) {
	ev := Event{Type: TopicCollectionChanged, Data: json.RawMessage(`{"process_id":"p","reason":"advance"}`), Remote: true}
	got, err := Decode[CollectionChanged](ev)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ProcessID != "p" || got.Reason != "advance" {
		t.Errorf("payload = %+v", got)
	}

	bad := Event{Type: TopicCollectionChanged, Data: "not an object"}
	if _, err := Decode[CollectionChanged](bad); err == nil {
		t.Error("expected error for mismatched payload")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(8)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishCollectionChanged("proc-9", "", "group.deleted")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: collection-changed") {
		t.Errorf("handler output missing event: %q", body)
	}
	if !strings.Contains(body, `"process_id":"proc-9"`) {
		t.Errorf("handler output missing data: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(4)
	defer b.Close()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 10; i++ {
		b.PublishCollectionChanged("p", "", "bulk")
	}
	deadline := time.Now().Add(time.Second)
	for b.Dropped() < 6 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.Dropped() != 6 {
		t.Errorf("dropped = %d, want 6", b.Dropped())
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker(8)
	sub := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.PublishCollectionChanged("p", "", "late")
	b.Unsubscribe(sub)
}
