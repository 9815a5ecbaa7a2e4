// Package firehose provides a lightweight in-process publish/subscribe hub
// used to fan out search activity to multiple listeners (e.g. WebSocket
// sessions watching a gateway instance).
//
// Fan-out is best effort: a listener whose buffer is full misses events
// rather than backpressuring the search path. There is no persistence or
// replay; the stream is ephemeral.
package firehose

import (
	"sync"
	"time"
)

// SearchEvent describes one completed search, whichever tier served it.
type SearchEvent struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Query     string    `json:"query"`
	Source    string    `json:"source"`
	Count     int       `json:"count"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is the hub envelope. Type is "search" for search events; other
// kinds (heartbeat, info) can be added without changing channel types.
type Event struct {
	Type   string      `json:"type"`
	Search SearchEvent `json:"search"`
}

// Hub is a concurrency-safe in-memory fan-out dispatcher. Each listener
// gets its own buffered channel.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan Event
	nextID    uint64
	bufSize   int
}

// NewHub constructs a hub with the given per-listener buffer size.
// If bufSize <= 0, a default of 32 is used.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{
		listeners: make(map[uint64]chan Event),
		bufSize:   bufSize,
	}
}

// Register adds a listener and returns its id and receive channel. Callers
// must Unregister(id) to release resources.
func (h *Hub) Register() (uint64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes a listener and closes its channel. Safe to call more
// than once; unknown ids are ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers a search event to all listeners, dropping it for any
// listener whose buffer is full.
func (h *Hub) Broadcast(ev SearchEvent) {
	wrapped := Event{Type: "search", Search: ev}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- wrapped:
		default:
			// Drop for slow listener.
		}
	}
}

// Size returns the current number of active listeners.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
