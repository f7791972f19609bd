package history

import (
	"context"
	"fmt"
	"sync"
)

// memoryCap bounds the in-memory store so long-lived serve processes do not
// grow without limit. Oldest rows are dropped first.
const memoryCap = 1000

// Memory is the default Store. It keeps the most recent records in a slice,
// oldest first.
type Memory struct {
	mu   sync.RWMutex
	recs []Record
}

// NewMemory constructs an in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// StoreSearch appends a record, dropping the oldest once the cap is reached.
func (m *Memory) StoreSearch(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	if len(m.recs) > memoryCap {
		m.recs = m.recs[len(m.recs)-memoryCap:]
	}
	return nil
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (m *Memory) Recent(limit int) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.recs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := len(m.recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.recs[i])
	}
	return out
}

// Len reports the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recs)
}

// Close is a no-op for the memory store.
func (m *Memory) Close() {}
