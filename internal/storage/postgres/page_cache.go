package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

// PageCache stores extracted page text in the page_cache table, keyed by URL.
type PageCache struct {
	pool dbPool
}

// NewPageCache connects a pool and wraps it in a PageCache.
func NewPageCache(ctx context.Context, cfg PoolConfig) (*PageCache, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PageCache{pool: pool}, nil
}

// NewPageCacheWithPool constructs a cache from an existing pool (primarily for testing).
func NewPageCacheWithPool(pool dbPool) (*PageCache, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PageCache{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (c *PageCache) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}

// Get returns the live entry for a URL. A stale row is a miss; it stays in
// place until the next Put overwrites it.
func (c *PageCache) Get(ctx context.Context, url string, now time.Time) (claims.PageCacheEntry, bool, error) {
	query := `
		SELECT url, content, crawled_at, expires_at
		FROM page_cache
		WHERE url = $1 AND expires_at > $2;
	`
	var entry claims.PageCacheEntry
	err := c.pool.QueryRow(ctx, query, url, now).Scan(
		&entry.URL, &entry.Content, &entry.CrawledAt, &entry.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return claims.PageCacheEntry{}, false, nil
		}
		return claims.PageCacheEntry{}, false, fmt.Errorf("get cached page: %w", err)
	}
	return entry, true, nil
}

// Put upserts the entry for its URL.
func (c *PageCache) Put(ctx context.Context, entry claims.PageCacheEntry) error {
	query := `
		INSERT INTO page_cache (url, content, crawled_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO UPDATE
		SET content = EXCLUDED.content,
			crawled_at = EXCLUDED.crawled_at,
			expires_at = EXCLUDED.expires_at;
	`
	_, err := c.pool.Exec(ctx, query, entry.URL, entry.Content, entry.CrawledAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert cached page: %w", err)
	}
	return nil
}
