package events

import "sync"

// Buffer is an Emitter that retains the most recent events in memory so the
// RPC layer can serve event history queries without an external indexer.
type Buffer struct {
	mu     sync.RWMutex
	events []Event
	limit  int
}

// NewBuffer creates a buffer retaining at most limit events. A non-positive
// limit falls back to 256.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = 256
	}
	return &Buffer{limit: limit}
}

// Emit appends the event, evicting the oldest entry once the limit is hit.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	if len(b.events) > b.limit {
		b.events = b.events[len(b.events)-b.limit:]
	}
}

// Recent returns up to n of the most recent events, newest last. n <= 0
// returns everything retained.
func (b *Buffer) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.events) {
		n = len(b.events)
	}
	out := make([]Event, n)
	copy(out, b.events[len(b.events)-n:])
	return out
}
