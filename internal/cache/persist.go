package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelinal/gamesearch/internal/clock"
)

// snapshot is the on-disk shape of the cache.
type snapshot struct {
	Entries []Entry `json:"entries"`
	MaxSize int     `json:"max_size"`
}

// DefaultPath returns the platform cache file location,
// <user cache dir>/gamesearch/search_cache.json.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}
	return filepath.Join(dir, "gamesearch", "search_cache.json"), nil
}

// Load reads a cache snapshot from path. A missing file yields a fresh empty
// cache with no error; a corrupt file yields a fresh cache alongside the
// error so callers can warn and carry on. maxSize overrides whatever the
// snapshot recorded, and expired entries are dropped on load.
func Load(path string, maxSize int, clk clock.Clock) (*Cache, error) {
	c := New(maxSize, clk)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("read cache file %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return c, fmt.Errorf("decode cache file %s: %w", path, err)
	}

	c.mu.Lock()
	c.entries = snap.Entries
	c.mu.Unlock()
	c.CleanupExpired()
	c.SetMaxSize(maxSize)
	return c, nil
}

// Save writes the cache as pretty-printed JSON, creating parent directories
// as needed.
func (c *Cache) Save(path string) error {
	c.mu.Lock()
	snap := snapshot{
		Entries: append([]Entry(nil), c.entries...),
		MaxSize: c.maxSize,
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache file %s: %w", path, err)
	}
	return nil
}
