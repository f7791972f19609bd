package sinks

import (
	"context"
	"sync"

	"github.com/pelinal/gamesearch/internal/progress"
)

// defaultStoreCapacity bounds the in-memory event store when the caller does
// not choose a size.
const defaultStoreCapacity = 256

// EventStore keeps the most recent progress events in a bounded ring buffer
// so the API's events endpoint can show what recent searches did. Older
// events fall off the back; nothing is persisted.
type EventStore struct {
	mu     sync.Mutex
	buf    []progress.Event
	next   int
	filled bool
}

// NewEventStore creates a store holding up to capacity events.
func NewEventStore(capacity int) *EventStore {
	if capacity <= 0 {
		capacity = defaultStoreCapacity
	}
	return &EventStore{buf: make([]progress.Event, capacity)}
}

// Consume appends the batch, overwriting the oldest events once full.
func (s *EventStore) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.buf[s.next] = evt
		s.next++
		if s.next == len(s.buf) {
			s.next = 0
			s.filled = true
		}
	}
	return nil
}

// Recent returns stored events newest first, at most limit of them. A
// non-positive limit returns everything stored.
func (s *EventStore) Recent(limit int) []progress.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.next
	if s.filled {
		size = len(s.buf)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]progress.Event, 0, limit)
	idx := s.next - 1
	for i := 0; i < limit; i++ {
		if idx < 0 {
			idx = len(s.buf) - 1
		}
		out = append(out, s.buf[idx])
		idx--
	}
	return out
}

// Len reports how many events are currently stored.
func (s *EventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filled {
		return len(s.buf)
	}
	return s.next
}

// Close implements the Sink interface; it performs no action.
func (s *EventStore) Close(context.Context) error {
	return nil
}
