// Package quota enforces the per-user cap on new claim requests.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

// Counter is the slice of the request store the quota check needs.
type Counter interface {
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Limiter counts requests created inside a rolling window and denies once
// the count reaches the limit. The window is rolling rather than
// calendar-day so behavior does not depend on a timezone policy.
//
// This is a read-then-create check: two concurrent creates can both pass and
// leave the user one over the limit. The request store's single-active-claim
// constraint bounds that race at one extra row, which is the accepted slack.
type Limiter struct {
	counter Counter
	limit   int
	window  time.Duration
	clock   claims.Clock
}

// Config holds quota limiter configuration.
type Config struct {
	DailyLimit int
	Window     time.Duration
}

// New creates a Limiter, substituting defaults for non-positive values.
func New(counter Counter, clock claims.Clock, cfg Config) *Limiter {
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	return &Limiter{
		counter: counter,
		limit:   cfg.DailyLimit,
		window:  cfg.Window,
		clock:   clock,
	}
}

// Allow returns claims.ErrRateLimited once the user has created limit
// requests inside the window.
func (l *Limiter) Allow(ctx context.Context, userID string) error {
	since := l.clock.Now().Add(-l.window)
	n, err := l.counter.CountCreatedSince(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("count recent requests: %w", err)
	}
	if n >= l.limit {
		return claims.ErrRateLimited
	}
	return nil
}
