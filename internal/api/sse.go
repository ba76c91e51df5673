package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// Broker fans payment events out to connected admin dashboards over
// Server-Sent Events. It implements notify.Publisher.
//
// Slow subscribers are dropped rather than blocking the publisher: a
// dashboard that misses an event recovers on its next payment list refresh.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]chan []byte
	logger      *slog.Logger
}

// NewBroker creates an event broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]chan []byte),
		logger:      logger,
	}
}

// Publish sends event to every connected subscriber.
func (b *Broker) Publish(event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal SSE event", "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- payload:
		default:
			b.logger.Warn("dropping SSE event for slow subscriber", "subscriber", id)
		}
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
func (b *Broker) Subscribe() (string, <-chan []byte) {
	id := uuid.New().String()
	ch := make(chan []byte, 16)

	b.mu.Lock()
	b.subscribers[id] = ch
	count := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Info("SSE subscriber connected", "subscriber", id, "total", count)
	return id, ch
}

// Unsubscribe removes a subscriber.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
	count := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Info("SSE subscriber disconnected", "subscriber", id, "total", count)
}

// SubscriberCount returns how many dashboards are connected.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ServeHTTP handles GET /api/events: it holds the connection open and
// streams published events until the client goes away.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Tell the client the stream is live before any event arrives
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	id, events := b.Subscribe()
	defer b.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
