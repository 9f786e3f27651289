// Package claims defines core types shared across subsystems.
package claims

import "time"

// Status represents the lifecycle state of a verification request.
type Status string

// Status values persisted in the request store.
const (
	StatusPending       Status = "pending"
	StatusCrawling      Status = "crawling"
	StatusAwaitingAdmin Status = "awaiting_admin"
	StatusApproved      Status = "approved"
	StatusDenied        Status = "denied"
	StatusExpired       Status = "expired"
)

// Terminal reports whether no further transition is defined from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusDenied, StatusExpired:
		return true
	default:
		return false
	}
}

// Active reports whether s counts against the one-open-claim-per-user rule.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusCrawling, StatusAwaitingAdmin:
		return true
	default:
		return false
	}
}

// VerificationRequest is one claim attempt by a user against an external page.
type VerificationRequest struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	ArtistName      string           `json:"artist_name"`
	ClaimCode       string           `json:"claim_code"`
	TargetURL       string           `json:"target_url,omitempty"`
	Status          Status           `json:"status"`
	ExpiresAt       time.Time        `json:"expires_at"`
	CrawledAt       *time.Time       `json:"crawled_at,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	ReviewNotes     string           `json:"review_notes,omitempty"`
	CrawlerResponse *CrawlerResponse `json:"crawler_response,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// CrawlerResponse is the diagnostic payload recorded after a crawl finishes,
// primarily for the admin reviewing an escalated request.
type CrawlerResponse struct {
	Attempts     int    `json:"attempts"`
	Matched      bool   `json:"matched"`
	MatchedIn    string `json:"matched_in,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	UsedHeadless bool   `json:"used_headless"`
	DurationMs   int64  `json:"duration_ms"`
	SnapshotURI  string `json:"snapshot_uri,omitempty"`
}

// Match locations recorded in CrawlerResponse.MatchedIn.
const (
	MatchedInCache  = "cache"
	MatchedInMarkup = "markup"
	MatchedInText   = "text"
)

// PageCacheEntry holds previously fetched page text, keyed by URL.
type PageCacheEntry struct {
	URL       string    `json:"url"`
	Content   string    `json:"content"`
	CrawledAt time.Time `json:"crawled_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Live reports whether the entry is still within its TTL at the given time.
func (e PageCacheEntry) Live(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

// ArtistProfile mirrors the record owned by the external profile store.
// It is only ever written as a side effect of a request reaching approved.
type ArtistProfile struct {
	UserID     string     `json:"user_id"`
	ArtistName string     `json:"artist_name"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// CrawlTask is one unit of crawl work handed to the worker pool.
type CrawlTask struct {
	RequestID string
	UserID    string
	TargetURL string
	ClaimCode string
	Submitted int64
}

// FetchResult is returned by a Fetcher implementation.
type FetchResult struct {
	FinalURL     string
	StatusCode   int
	Markup       string
	Text         string
	Duration     time.Duration
	UsedHeadless bool
}

// NotificationKind labels outbound user notifications.
type NotificationKind string

// Notification kinds emitted by the state machine.
const (
	NotifyApproved NotificationKind = "approved"
	NotifyDenied   NotificationKind = "denied"
	NotifyExpired  NotificationKind = "expired"
)
