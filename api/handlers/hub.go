package handlers

import (
	"sync"

	"github.com/swipswaps/paddle-ocr/internal/models"
)

// Hub fans the active job's narrative out to any number of connected
// browser streams. Slow consumers drop entries rather than stall the
// job.
type Hub struct {
	mu   sync.Mutex
	subs map[chan models.LogEntry]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan models.LogEntry]struct{})}
}

// Publish delivers one entry to every subscriber, best effort.
func (h *Hub) Publish(e models.LogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a consumer. The returned func unregisters it and
// closes the channel.
func (h *Hub) Subscribe() (<-chan models.LogEntry, func()) {
	ch := make(chan models.LogEntry, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}
