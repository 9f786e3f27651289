package claims

import (
	"context"
	"time"
)

// RequestStore persists verification requests. Status transition methods
// perform their guard and write atomically: a failed guard returns
// ErrInvalidState, a missing row returns ErrNotFound.
type RequestStore interface {
	Create(ctx context.Context, req VerificationRequest) error
	Get(ctx context.Context, id string) (VerificationRequest, error)
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error)
	MarkCrawling(ctx context.Context, id, targetURL string) error
	RevertCrawling(ctx context.Context, id string) error
	MarkExpired(ctx context.Context, id string, now time.Time) error
	ExpireOverdue(ctx context.Context, now time.Time) ([]VerificationRequest, error)
	FinishCrawl(ctx context.Context, id string, status Status, resp CrawlerResponse, now time.Time) error
	Review(ctx context.Context, id string, status Status, notes string, now time.Time) error
	ListByStatus(ctx context.Context, status Status, limit int) ([]VerificationRequest, error)
}

// PageCache stores extracted page text keyed by URL. A stale entry is a
// miss. Put is an upsert.
type PageCache interface {
	Get(ctx context.Context, url string, now time.Time) (PageCacheEntry, bool, error)
	Put(ctx context.Context, entry PageCacheEntry) error
}

// ProfileStore updates the artist profile owned by the wider platform.
type ProfileStore interface {
	UpsertVerified(ctx context.Context, userID, artistName string, verifiedAt time.Time) error
}

// Notifier delivers user-facing notifications. Fire and forget: the caller
// logs failures and moves on.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind NotificationKind, payload map[string]any) error
}

// SnapshotStore archives rendered page markup for admin review. Put returns
// a URI the admin UI can resolve.
type SnapshotStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Fetcher retrieves a page. Implementations decide how (plain HTTP or a
// headless browser).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Queue hands crawl tasks from the API to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, task CrawlTask) error
	Dequeue(ctx context.Context) (CrawlTask, error)
}

// CrawlCompleter settles a crawl outcome. Implemented by the service layer;
// workers never touch request rows directly.
type CrawlCompleter interface {
	CompleteCrawl(ctx context.Context, requestID string, matched bool, resp CrawlerResponse) error
}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints request identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// CodeGenerator mints claim codes.
type CodeGenerator interface {
	NewCode() (string, error)
}
