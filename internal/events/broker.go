package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

const defaultClientBuffer = 64

// Subscription is one subscriber's view of the broker.
type Subscription struct {
	// C receives matching events. It is closed on Unsubscribe or broker Close.
	C <-chan Event

	ch     chan Event
	topics map[Topic]struct{}
}

func (s *Subscription) wants(t Topic) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[t]
	return ok
}

// Broker fans events out to subscribers.
//
// Concurrency model: a single internal event loop (goroutine) owns the
// subscriber set. Public methods talk to the loop through channels, so no
// mutexes are required.
type Broker struct {
	clientBuffer int

	subscribeCh   chan *Subscription
	unsubscribeCh chan *Subscription
	publishCh     chan Event
	countReqCh    chan chan int

	dropped atomic.Uint64

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker whose subscribers buffer up to clientBuffer events.
func NewBroker(clientBuffer int) *Broker {
	if clientBuffer <= 0 {
		clientBuffer = defaultClientBuffer
	}

	b := &Broker{
		clientBuffer:  clientBuffer,
		subscribeCh:   make(chan *Subscription),
		unsubscribeCh: make(chan *Subscription),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[*Subscription]struct{})

	for {
		select {
		case <-b.stopCh:
			for s := range clients {
				close(s.ch)
			}
			return

		case s := <-b.subscribeCh:
			clients[s] = struct{}{}

		case s := <-b.unsubscribeCh:
			if _, ok := clients[s]; ok {
				delete(clients, s)
				close(s.ch)
			}

		case event := <-b.publishCh:
			for s := range clients {
				if !s.wants(event.Type) {
					continue
				}
				select {
				case s.ch <- event:
				default:
					// Subscriber buffer full; skip to avoid blocking the loop.
					b.dropped.Add(1)
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every subscription.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a subscriber for the given topics (all topics when none).
func (b *Broker) Subscribe(topics ...Topic) *Subscription {
	ch := make(chan Event, b.clientBuffer)
	s := &Subscription{C: ch, ch: ch}
	if len(topics) > 0 {
		s.topics = make(map[Topic]struct{}, len(topics))
		for _, t := range topics {
			s.topics[t] = struct{}{}
		}
	}
	if b.closed.Load() {
		close(ch)
		return s
	}

	select {
	case b.subscribeCh <- s:
	case <-b.stopped:
		close(ch)
	}
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(s *Subscription) {
	if s == nil || b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- s:
	case <-b.stopped:
	}
}

// ClientCount returns the number of live subscriptions.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Publish sends an event to all matching subscribers.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishCollectionChanged announces that the entry collection of a process changed.
func (b *Broker) PublishCollectionChanged(processID, entryID, reason string) {
	b.Publish(Event{
		Type: TopicCollectionChanged,
		Data: CollectionChanged{ProcessID: processID, EntryID: entryID, Reason: reason},
	})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// "topic" query parameter, repeated, narrows the stream.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var topics []Topic
	for _, t := range r.URL.Query()["topic"] {
		topics = append(topics, Topic(t))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := b.Subscribe(topics...)
	defer b.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			msg, err := formatSSE(ev)
			if err != nil {
				continue
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

func formatSSE(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, payload)), nil
}
