package claims

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryPolicy controls how many fetch attempts a crawl gets and how long to
// back off between them.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy builds a policy. Non-positive arguments fall back to the
// defaults of 3 attempts, 500ms base delay and a 30s cap.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &RetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay, maxDelay: maxDelay}
}

// MaxAttempts returns the attempt budget.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry reports whether another attempt should follow the given
// zero-based attempt. A per-attempt deadline counts against the budget and is
// retryable; cancellation means shutdown and is not.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt+1 >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Backoff returns the delay before the attempt after the given zero-based
// attempt: base doubled per attempt, capped at the max.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(p.baseDelay) * math.Pow(2, float64(attempt)))
	if d > p.maxDelay {
		return p.maxDelay
	}
	return d
}
