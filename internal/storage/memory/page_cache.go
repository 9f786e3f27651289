package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

// PageCache keeps cached page text in a map. Stale entries are treated as
// misses and overwritten on the next Put.
type PageCache struct {
	mu      sync.RWMutex
	entries map[string]claims.PageCacheEntry
}

// NewPageCache constructs a PageCache.
func NewPageCache() *PageCache {
	return &PageCache{
		entries: make(map[string]claims.PageCacheEntry),
	}
}

// Get returns the live entry for a URL, if any.
func (c *PageCache) Get(_ context.Context, url string, now time.Time) (claims.PageCacheEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[url]
	if !ok || !entry.Live(now) {
		return claims.PageCacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put upserts the entry for its URL.
func (c *PageCache) Put(_ context.Context, entry claims.PageCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.URL] = entry
	return nil
}
