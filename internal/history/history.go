// Package history records completed searches for later inspection.
package history

import (
	"context"
	"time"
)

// Record is one completed search: what was asked, how many sites were
// queried, what came back, and whether the cache answered it.
type Record struct {
	ID        string
	QueryHash string
	Query     string
	Sites     int
	Results   int
	CacheHit  bool
	Duration  time.Duration
	CreatedAt time.Time
}

// Store persists one row per completed search.
type Store interface {
	StoreSearch(ctx context.Context, rec Record) error
	Close()
}
