// Package cache keeps recent search results so repeated queries skip the
// network entirely. Entries expire by TTL and the cache holds a small
// bounded number of searches, evicting the oldest first.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/pelinal/gamesearch/internal/clock"
	"github.com/pelinal/gamesearch/internal/search"
)

const (
	// MinSize is the smallest (and default) number of cached searches.
	MinSize = 3
	// MaxSize is the largest allowed number of cached searches.
	MaxSize = 20
	// DefaultTTL is how long an entry stays fresh unless overridden.
	DefaultTTL = 12 * time.Hour
)

// Entry is one cached search. Timestamp is unix seconds at insert time;
// TTLSeconds is the entry's own lifetime so persisted entries keep expiring
// on schedule across restarts.
type Entry struct {
	Query      string          `json:"query"`
	Results    []search.Result `json:"results"`
	Timestamp  int64           `json:"timestamp"`
	TTLSeconds int64           `json:"ttl"`
}

// Age reports how long ago the entry was stored.
func (e Entry) Age(now time.Time) time.Duration {
	age := now.Unix() - e.Timestamp
	if age < 0 {
		return 0
	}
	return time.Duration(age) * time.Second
}

// Expired reports whether the entry has outlived its TTL.
func (e Entry) Expired(now time.Time) bool {
	return e.Age(now) > time.Duration(e.TTLSeconds)*time.Second
}

// RemainingTTL reports how much lifetime the entry has left, zero once
// expired.
func (e Entry) RemainingTTL(now time.Time) time.Duration {
	if e.Expired(now) {
		return 0
	}
	return time.Duration(e.TTLSeconds)*time.Second - e.Age(now)
}

// Cache is a mutex-guarded, insertion-ordered search cache. Entries are kept
// oldest first; adding an existing query moves it to the newest slot. Safe
// for concurrent use by the CLI, API handlers and the persistence layer.
type Cache struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
	clk     clock.Clock
}

// New creates an empty cache. maxSize is clamped to [MinSize, MaxSize]; a
// nil clock falls back to the system clock.
func New(maxSize int, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.System()
	}
	return &Cache{
		maxSize: clampSize(maxSize),
		clk:     clk,
	}
}

// Len returns the number of cached searches, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxSize returns the current capacity.
func (c *Cache) MaxSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

// SetMaxSize changes the capacity, clamped to [MinSize, MaxSize], evicting
// the oldest entries if the cache now exceeds it.
func (c *Cache) SetMaxSize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = clampSize(size)
	if over := len(c.entries) - c.maxSize; over > 0 {
		c.entries = append(c.entries[:0], c.entries[over:]...)
	}
}

// Get looks up a query case-insensitively. Expired entries are misses; they
// stay in place until CleanupExpired or eviction removes them. The returned
// entry's results slice is a copy.
func (c *Cache) Get(query string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	lower := strings.ToLower(query)
	for _, e := range c.entries {
		if strings.ToLower(e.Query) == lower && !e.Expired(now) {
			return copyEntry(e), true
		}
	}
	return Entry{}, false
}

// Add stores the results for a query with the default TTL.
func (c *Cache) Add(query string, results []search.Result) {
	c.AddWithTTL(query, results, DefaultTTL)
}

// AddWithTTL stores the results for a query. An existing entry for the same
// query (case-insensitive) is replaced and becomes the newest; the oldest
// entries are evicted while the cache is over capacity.
func (c *Cache) AddWithTTL(query string, results []search.Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(query)
	c.entries = append(c.entries, Entry{
		Query:      query,
		Results:    append([]search.Result(nil), results...),
		Timestamp:  c.clk.Now().Unix(),
		TTLSeconds: int64(ttl / time.Second),
	})
	if over := len(c.entries) - c.maxSize; over > 0 {
		c.entries = append(c.entries[:0], c.entries[over:]...)
	}
}

// Remove deletes the entry for a query (case-insensitive), reporting whether
// anything was removed.
func (c *Cache) Remove(query string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(query)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Entries returns a snapshot of all entries, oldest first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// EntriesNewestFirst returns a snapshot of all entries, newest first, for
// recent-search listings.
func (c *Cache) EntriesNewestFirst() []Entry {
	entries := c.Entries()
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

// CleanupExpired drops every expired entry and returns how many went.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if !e.Expired(now) {
			kept = append(kept, e)
		}
	}
	removed := len(c.entries) - len(kept)
	c.entries = kept
	return removed
}

// ExpiredCount reports how many entries are expired without removing them.
func (c *Cache) ExpiredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	n := 0
	for _, e := range c.entries {
		if e.Expired(now) {
			n++
		}
	}
	return n
}

func (c *Cache) removeLocked(query string) bool {
	lower := strings.ToLower(query)
	kept := c.entries[:0]
	for _, e := range c.entries {
		if strings.ToLower(e.Query) != lower {
			kept = append(kept, e)
		}
	}
	removed := len(c.entries) != len(kept)
	c.entries = kept
	return removed
}

func copyEntry(e Entry) Entry {
	e.Results = append([]search.Result(nil), e.Results...)
	return e
}

func clampSize(size int) int {
	if size < MinSize {
		return MinSize
	}
	if size > MaxSize {
		return MaxSize
	}
	return size
}
