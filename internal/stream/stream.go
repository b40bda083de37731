package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"stockroom.org/internal/store"
)

// Hub fan-outs committed store events to active subscribers (SSE clients,
// cache reconcilers).
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Uint64
}

type subscriber struct {
	collection store.Collection
	ch         chan store.Event
}

// NewHub initialises an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for collection (all collections when empty)
// and returns a channel which will receive events. The channel is closed when
// the provided context ends.
func (h *Hub) Subscribe(ctx context.Context, collection store.Collection) <-chan store.Event {
	ch := make(chan store.Event, 32)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{collection: collection, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all matching subscribers.
func (h *Hub) Publish(evt store.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.collection != "" && sub.collection != evt.Collection {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Slow subscriber; drop rather than block the writer.
			h.dropped.Add(1)
		}
	}
}

// Subscribers reports the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports how many events were discarded for slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
