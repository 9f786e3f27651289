package claims

import "errors"

// Sentinel errors returned from synchronous validation. Crawl failures are
// never surfaced as errors: they land in awaiting_admin with a
// CrawlerResponse attached.
var (
	ErrRateLimited        = errors.New("daily claim limit reached")
	ErrConflictingRequest = errors.New("an open verification request already exists")
	ErrNotFound           = errors.New("verification request not found")
	ErrInvalidState       = errors.New("request is not in a valid state for this operation")
	ErrCodeMismatch       = errors.New("claim code does not match")
	ErrExpired            = errors.New("verification request has expired")
)

// ErrCodeCollision means a freshly generated claim code is already held by
// another live request. Never user-facing: the orchestrator regenerates.
var ErrCodeCollision = errors.New("claim code already in use")
