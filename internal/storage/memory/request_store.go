// Package memory provides in-memory store implementations for development
// and testing. Guard semantics mirror the Postgres implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

// RequestStore keeps verification requests in a map under a single mutex,
// which makes every transition trivially atomic.
type RequestStore struct {
	mu       sync.RWMutex
	requests map[string]claims.VerificationRequest
}

// NewRequestStore constructs a RequestStore.
func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests: make(map[string]claims.VerificationRequest),
	}
}

// Create stores a new pending request, enforcing one active request per user
// and claim-code uniqueness among active requests.
func (s *RequestStore) Create(_ context.Context, req claims.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if !existing.Status.Active() {
			continue
		}
		if existing.UserID == req.UserID {
			return claims.ErrConflictingRequest
		}
		if existing.ClaimCode == req.ClaimCode {
			return claims.ErrCodeCollision
		}
	}
	s.requests[req.ID] = req
	return nil
}

// Get fetches a request by ID.
func (s *RequestStore) Get(_ context.Context, id string) (claims.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return claims.VerificationRequest{}, claims.ErrNotFound
	}
	return req, nil
}

// CountCreatedSince counts the user's requests created after since.
func (s *RequestStore) CountCreatedSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, req := range s.requests {
		if req.UserID == userID && req.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

// MarkCrawling moves pending -> crawling and records the target URL.
func (s *RequestStore) MarkCrawling(_ context.Context, id, targetURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return claims.ErrNotFound
	}
	if req.Status != claims.StatusPending {
		return claims.ErrInvalidState
	}
	req.Status = claims.StatusCrawling
	req.TargetURL = targetURL
	s.requests[id] = req
	return nil
}

// RevertCrawling moves crawling -> pending, undoing a hand-off that never
// reached the crawl queue.
func (s *RequestStore) RevertCrawling(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return claims.ErrNotFound
	}
	if req.Status != claims.StatusCrawling {
		return claims.ErrInvalidState
	}
	req.Status = claims.StatusPending
	s.requests[id] = req
	return nil
}

// MarkExpired moves pending -> expired.
func (s *RequestStore) MarkExpired(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return claims.ErrNotFound
	}
	if req.Status != claims.StatusPending {
		return claims.ErrInvalidState
	}
	req.Status = claims.StatusExpired
	s.requests[id] = req
	return nil
}

// ExpireOverdue expires every pending request whose deadline has passed.
func (s *RequestStore) ExpireOverdue(_ context.Context, now time.Time) ([]claims.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []claims.VerificationRequest
	for id, req := range s.requests {
		if req.Status == claims.StatusPending && now.After(req.ExpiresAt) {
			req.Status = claims.StatusExpired
			s.requests[id] = req
			expired = append(expired, req)
		}
	}
	return expired, nil
}

// FinishCrawl moves crawling -> approved or awaiting_admin.
func (s *RequestStore) FinishCrawl(_ context.Context, id string, status claims.Status, resp claims.CrawlerResponse, now time.Time) error {
	if status != claims.StatusApproved && status != claims.StatusAwaitingAdmin {
		return claims.ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return claims.ErrNotFound
	}
	if req.Status != claims.StatusCrawling {
		return claims.ErrInvalidState
	}
	req.Status = status
	req.CrawledAt = timePtr(now)
	req.CrawlerResponse = &resp
	s.requests[id] = req
	return nil
}

// Review moves awaiting_admin -> approved or denied.
func (s *RequestStore) Review(_ context.Context, id string, status claims.Status, notes string, now time.Time) error {
	if status != claims.StatusApproved && status != claims.StatusDenied {
		return claims.ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return claims.ErrNotFound
	}
	if req.Status != claims.StatusAwaitingAdmin {
		return claims.ErrInvalidState
	}
	req.Status = status
	req.ReviewedAt = timePtr(now)
	req.ReviewNotes = notes
	s.requests[id] = req
	return nil
}

// ListByStatus returns up to limit requests in the given status, oldest first.
func (s *RequestStore) ListByStatus(_ context.Context, status claims.Status, limit int) ([]claims.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []claims.VerificationRequest
	for _, req := range s.requests {
		if req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func timePtr(t time.Time) *time.Time {
	ts := t
	return &ts
}
