// Package service implements the verification state machine and orchestrator.
//
// All writes to verification requests flow through this package; callers and
// the crawl worker only ever see its transition methods. Each transition
// leans on the request store performing guard-check and write atomically, so
// two racing transitions cannot both get past the same guard.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sedamusic/claim-verifier/internal/claims"
	"github.com/sedamusic/claim-verifier/internal/metrics"
)

// ErrReasonTooShort rejects admin denials whose reason would not be
// actionable for the user.
var ErrReasonTooShort = errors.New("deny reason is too short")

// ErrInvalidTargetURL rejects submissions whose target is not an http(s) URL.
var ErrInvalidTargetURL = errors.New("target url must be absolute http or https")

// QuotaChecker is the admission check for new claims.
type QuotaChecker interface {
	Allow(ctx context.Context, userID string) error
}

// Config controls Verifier behavior.
type Config struct {
	// RequestTTL is how long a pending claim stays submittable.
	RequestTTL time.Duration
	// MinDenyReasonLen is the minimum length of an admin deny reason.
	MinDenyReasonLen int
	// EnqueueTimeout bounds how long a submit waits for queue capacity.
	EnqueueTimeout time.Duration
}

// Verifier owns the lifecycle of verification requests.
type Verifier struct {
	store    claims.RequestStore
	profiles claims.ProfileStore
	notifier claims.Notifier
	queue    claims.Queue
	quota    QuotaChecker
	codes    claims.CodeGenerator
	ids      claims.IDGenerator
	clock    claims.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Verifier, substituting defaults for zero config values.
func New(
	store claims.RequestStore,
	profiles claims.ProfileStore,
	notifier claims.Notifier,
	queue claims.Queue,
	quota QuotaChecker,
	codes claims.CodeGenerator,
	ids claims.IDGenerator,
	clock claims.Clock,
	cfg Config,
	logger *zap.Logger,
) *Verifier {
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = 7 * 24 * time.Hour
	}
	if cfg.MinDenyReasonLen <= 0 {
		cfg.MinDenyReasonLen = 10
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 5 * time.Second
	}
	return &Verifier{
		store:    store,
		profiles: profiles,
		notifier: notifier,
		queue:    queue,
		quota:    quota,
		codes:    codes,
		ids:      ids,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// StartClaim creates a new pending verification request for the user.
// It fails with claims.ErrRateLimited when the daily quota is exhausted and
// claims.ErrConflictingRequest when the user already has an open request.
func (v *Verifier) StartClaim(ctx context.Context, userID, artistName string) (claims.VerificationRequest, error) {
	if strings.TrimSpace(userID) == "" {
		return claims.VerificationRequest{}, fmt.Errorf("user id is required")
	}
	if err := v.quota.Allow(ctx, userID); err != nil {
		return claims.VerificationRequest{}, err
	}

	// A code collision means another live request drew the same code;
	// regenerate rather than fail the user.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := v.buildRequest(userID, artistName)
		if err != nil {
			return claims.VerificationRequest{}, err
		}
		err = v.store.Create(ctx, req)
		if err == nil {
			metrics.ObserveStatus(string(claims.StatusPending))
			v.logger.Info("claim started",
				zap.String("request_id", req.ID),
				zap.String("user_id", userID),
			)
			return req, nil
		}
		if errors.Is(err, claims.ErrConflictingRequest) {
			return claims.VerificationRequest{}, err
		}
		lastErr = err
	}
	return claims.VerificationRequest{}, fmt.Errorf("create request: %w", lastErr)
}

func (v *Verifier) buildRequest(userID, artistName string) (claims.VerificationRequest, error) {
	id, err := v.ids.NewID()
	if err != nil {
		return claims.VerificationRequest{}, fmt.Errorf("generate request id: %w", err)
	}
	codeStr, err := v.codes.NewCode()
	if err != nil {
		return claims.VerificationRequest{}, fmt.Errorf("generate claim code: %w", err)
	}
	now := v.clock.Now()
	return claims.VerificationRequest{
		ID:         id,
		UserID:     userID,
		ArtistName: strings.TrimSpace(artistName),
		ClaimCode:  codeStr,
		Status:     claims.StatusPending,
		ExpiresAt:  now.Add(v.cfg.RequestTTL),
		CreatedAt:  now,
	}, nil
}

// Submit validates the claim code, records the target URL, moves the request
// to crawling and hands it to the crawl queue. The caller gets an answer as
// soon as the transition lands; the crawl itself runs in the background.
//
// A code mismatch leaves the request pending so the user can correct the
// code or URL and submit again.
func (v *Verifier) Submit(ctx context.Context, userID, requestID, targetURL, claimCode string) error {
	req, err := v.getOwned(ctx, userID, requestID)
	if err != nil {
		return err
	}

	now := v.clock.Now()
	if req.Status == claims.StatusPending && now.After(req.ExpiresAt) {
		if err := v.store.MarkExpired(ctx, requestID, now); err != nil && !errors.Is(err, claims.ErrInvalidState) {
			return fmt.Errorf("expire request: %w", err)
		}
		metrics.ObserveStatus(string(claims.StatusExpired))
		return claims.ErrExpired
	}
	if req.Status != claims.StatusPending {
		if req.Status == claims.StatusExpired {
			return claims.ErrExpired
		}
		return claims.ErrInvalidState
	}
	if req.ClaimCode != strings.TrimSpace(claimCode) {
		return claims.ErrCodeMismatch
	}
	if err := validateTargetURL(targetURL); err != nil {
		return err
	}

	if err := v.store.MarkCrawling(ctx, requestID, targetURL); err != nil {
		return err
	}
	metrics.ObserveStatus(string(claims.StatusCrawling))

	enqueueCtx, cancel := context.WithTimeout(ctx, v.cfg.EnqueueTimeout)
	defer cancel()
	task := claims.CrawlTask{
		RequestID: requestID,
		UserID:    userID,
		TargetURL: targetURL,
		ClaimCode: req.ClaimCode,
		Submitted: now.Unix(),
	}
	if err := v.queue.Enqueue(enqueueCtx, task); err != nil {
		// Undo the transition so the user can submit again. If the revert
		// also fails the row is caught by RecoverStalled on the next boot.
		if revertErr := v.store.RevertCrawling(ctx, requestID); revertErr != nil {
			v.logger.Error("crawling revert failed",
				zap.String("request_id", requestID), zap.Error(revertErr))
		} else {
			metrics.ObserveStatus(string(claims.StatusPending))
		}
		v.logger.Error("crawl enqueue failed",
			zap.String("request_id", requestID), zap.Error(err))
		return fmt.Errorf("enqueue crawl: %w", err)
	}
	v.logger.Info("claim submitted",
		zap.String("request_id", requestID),
		zap.String("url", targetURL),
	)
	return nil
}

// CompleteCrawl records the crawl verdict: approved on a match, escalated to
// the admin queue otherwise. Invoked by the crawl worker only.
func (v *Verifier) CompleteCrawl(ctx context.Context, requestID string, matched bool, resp claims.CrawlerResponse) error {
	req, err := v.store.Get(ctx, requestID)
	if err != nil {
		return err
	}

	now := v.clock.Now()
	status := claims.StatusAwaitingAdmin
	if matched {
		status = claims.StatusApproved
	}
	if err := v.store.FinishCrawl(ctx, requestID, status, resp, now); err != nil {
		return err
	}
	metrics.ObserveStatus(string(status))

	if matched {
		v.markVerified(ctx, req, now)
		v.notify(ctx, req.UserID, claims.NotifyApproved, map[string]any{
			"request_id": requestID,
			"url":        req.TargetURL,
		})
	}
	return nil
}

// AdminApprove resolves an escalated request in the user's favor.
func (v *Verifier) AdminApprove(ctx context.Context, requestID, notes string) (claims.VerificationRequest, error) {
	now := v.clock.Now()
	if err := v.store.Review(ctx, requestID, claims.StatusApproved, notes, now); err != nil {
		return claims.VerificationRequest{}, err
	}
	metrics.ObserveStatus(string(claims.StatusApproved))

	req, err := v.store.Get(ctx, requestID)
	if err != nil {
		return claims.VerificationRequest{}, err
	}
	v.markVerified(ctx, req, now)
	v.notify(ctx, req.UserID, claims.NotifyApproved, map[string]any{
		"request_id": requestID,
		"notes":      notes,
	})
	v.logger.Info("claim approved by admin", zap.String("request_id", requestID))
	return req, nil
}

// AdminDeny resolves an escalated request against the user. The reason is
// mandatory and is passed through to the user's notification.
func (v *Verifier) AdminDeny(ctx context.Context, requestID, reason string) (claims.VerificationRequest, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < v.cfg.MinDenyReasonLen {
		return claims.VerificationRequest{}, fmt.Errorf("%w: need at least %d characters", ErrReasonTooShort, v.cfg.MinDenyReasonLen)
	}
	if err := v.store.Review(ctx, requestID, claims.StatusDenied, reason, v.clock.Now()); err != nil {
		return claims.VerificationRequest{}, err
	}
	metrics.ObserveStatus(string(claims.StatusDenied))

	req, err := v.store.Get(ctx, requestID)
	if err != nil {
		return claims.VerificationRequest{}, err
	}
	v.notify(ctx, req.UserID, claims.NotifyDenied, map[string]any{
		"request_id": requestID,
		"reason":     reason,
	})
	v.logger.Info("claim denied by admin",
		zap.String("request_id", requestID),
		zap.String("reason", reason),
	)
	return req, nil
}

// GetRequest returns the user's own request for status polling.
func (v *Verifier) GetRequest(ctx context.Context, userID, requestID string) (claims.VerificationRequest, error) {
	return v.getOwned(ctx, userID, requestID)
}

// AdminQueue lists requests awaiting human review.
func (v *Verifier) AdminQueue(ctx context.Context, limit int) ([]claims.VerificationRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	return v.store.ListByStatus(ctx, claims.StatusAwaitingAdmin, limit)
}

// ExpireOverdue expires every pending request past its deadline and notifies
// the owners. Returns how many were expired. Called by the periodic sweep.
func (v *Verifier) ExpireOverdue(ctx context.Context) (int, error) {
	expired, err := v.store.ExpireOverdue(ctx, v.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("expire overdue: %w", err)
	}
	for _, req := range expired {
		metrics.ObserveStatus(string(claims.StatusExpired))
		v.notify(ctx, req.UserID, claims.NotifyExpired, map[string]any{
			"request_id": req.ID,
		})
	}
	if len(expired) > 0 {
		v.logger.Info("expired overdue claims", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// RecoverStalled escalates every crawling request to the admin queue. Call it
// at startup before the workers run: the crawl queue is in-memory, so any row
// still in crawling at boot was orphaned by a restart and no worker will ever
// settle it.
func (v *Verifier) RecoverStalled(ctx context.Context) (int, error) {
	const batchSize = 100
	recovered := 0
	for {
		stalled, err := v.store.ListByStatus(ctx, claims.StatusCrawling, batchSize)
		if err != nil {
			return recovered, fmt.Errorf("list stalled requests: %w", err)
		}
		now := v.clock.Now()
		for _, req := range stalled {
			err := v.store.FinishCrawl(ctx, req.ID, claims.StatusAwaitingAdmin, claims.CrawlerResponse{
				LastError: "crawl interrupted before completion",
			}, now)
			if errors.Is(err, claims.ErrInvalidState) || errors.Is(err, claims.ErrNotFound) {
				continue
			}
			if err != nil {
				return recovered, fmt.Errorf("escalate stalled request %s: %w", req.ID, err)
			}
			recovered++
			metrics.ObserveStatus(string(claims.StatusAwaitingAdmin))
			v.logger.Warn("escalated stalled crawl", zap.String("request_id", req.ID))
		}
		if len(stalled) < batchSize {
			return recovered, nil
		}
	}
}

func (v *Verifier) getOwned(ctx context.Context, userID, requestID string) (claims.VerificationRequest, error) {
	req, err := v.store.Get(ctx, requestID)
	if err != nil {
		return claims.VerificationRequest{}, err
	}
	// Requests are invisible to anyone but their owner.
	if req.UserID != userID {
		return claims.VerificationRequest{}, claims.ErrNotFound
	}
	return req, nil
}

// markVerified propagates an approval to the external profile store. The
// approval stands even if the upsert fails; the failure is logged for repair.
func (v *Verifier) markVerified(ctx context.Context, req claims.VerificationRequest, at time.Time) {
	if v.profiles == nil {
		return
	}
	if err := v.profiles.UpsertVerified(ctx, req.UserID, req.ArtistName, at); err != nil {
		v.logger.Error("profile upsert failed",
			zap.String("request_id", req.ID),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
	}
}

// notify is fire-and-forget: delivery failure never rolls back a transition.
func (v *Verifier) notify(ctx context.Context, userID string, kind claims.NotificationKind, payload map[string]any) {
	if v.notifier == nil {
		return
	}
	if err := v.notifier.Notify(ctx, userID, kind, payload); err != nil {
		v.logger.Warn("notification dispatch failed",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidTargetURL
	}
	return nil
}
