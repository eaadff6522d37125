package feed

import (
	"sync"

	"elevenlab/ent"
)

// Hub fans purchases out to subscribers. Slow subscribers miss events
// rather than block the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan ent.Purchase]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: map[chan ent.Purchase]struct{}{}}
}

// Subscribe returns a channel of purchases and a function that cancels the
// subscription. The channel is closed on cancel or when the hub closes.
func (h *Hub) Subscribe(buffer int) (<-chan ent.Purchase, func()) {
	ch := make(chan ent.Purchase, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

func (h *Hub) Publish(p ent.Purchase) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
