package events

import (
	"sync"

	"github.com/craftbid/backend/internal/models"
)

// subscriber buffer; a dashboard that falls this far behind is dropped and
// expected to re-sync from the durable feed with ?after=<last seq>.
const subscriberBuffer = 64

// Hub fans committed events out to in-process subscribers (the live websocket
// connections). It is purely a cache in front of the events table: dropping a
// subscriber loses nothing, since the table is the source of truth.
type Hub struct {
	mu   sync.Mutex
	subs map[chan models.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan models.Event]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called when the consumer goes away.
func (h *Hub) Subscribe() (<-chan models.Event, func()) {
	ch := make(chan models.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking. A
// subscriber with a full buffer misses the event; it reconciles via replay.
func (h *Hub) Publish(e models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
