// Package events fans engine state changes out to observers.
package events

import "sync"

// Kind names the piece of state that changed
type Kind string

const (
	KindFolders        Kind = "folders"
	KindView           Kind = "view"
	KindDetail         Kind = "detail"
	KindCompose        Kind = "compose"
	KindConnection     Kind = "connection"
	KindSync           Kind = "sync"
	KindMutationFailed Kind = "mutation_failed"
)

// Change is a notification that some state was replaced
type Change struct {
	Kind Kind
	// Err is set for KindMutationFailed
	Err error
}

// Hub delivers changes to subscribers. Slow subscribers drop events.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Change]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Change]struct{})}
}

// Subscribe registers a subscriber with the given buffer size.
// The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)
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

// Publish sends a change to every subscriber without blocking
func (h *Hub) Publish(c Change) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Len reports the number of subscribers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
