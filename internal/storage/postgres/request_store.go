// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

func newPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// RequestStore persists verification requests. Concurrency rules ride on two
// partial unique indexes over active rows:
//
//	verification_requests_one_active_per_user ON (user_id) WHERE status IN ('pending','crawling','awaiting_admin')
//	verification_requests_active_code         ON (claim_code) WHERE status IN ('pending','crawling','awaiting_admin')
//
// Transitions use optimistic status-guarded updates, so a row that already
// moved on reports ErrInvalidState instead of being overwritten.
type RequestStore struct {
	pool dbPool
}

// NewRequestStore connects a pool and wraps it in a RequestStore.
func NewRequestStore(ctx context.Context, cfg PoolConfig) (*RequestStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RequestStore{pool: pool}, nil
}

// NewRequestStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRequestStoreWithPool(pool dbPool) (*RequestStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RequestStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RequestStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const oneActivePerUserIndex = "verification_requests_one_active_per_user"
const activeCodeIndex = "verification_requests_active_code"

// Create inserts a pending request.
func (s *RequestStore) Create(ctx context.Context, req claims.VerificationRequest) error {
	query := `
		INSERT INTO verification_requests (id, user_id, artist_name, claim_code, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := s.pool.Exec(ctx, query,
		req.ID, req.UserID, req.ArtistName, req.ClaimCode, req.Status, req.ExpiresAt, req.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case oneActivePerUserIndex:
				return claims.ErrConflictingRequest
			case activeCodeIndex:
				return claims.ErrCodeCollision
			}
		}
		return fmt.Errorf("insert verification request: %w", err)
	}
	return nil
}

const requestColumns = `id, user_id, artist_name, claim_code, target_url, status,
	expires_at, crawled_at, reviewed_at, review_notes, crawler_response, created_at`

// Get fetches a request by ID.
func (s *RequestStore) Get(ctx context.Context, id string) (claims.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1;`
	req, err := scanRequest(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return claims.VerificationRequest{}, claims.ErrNotFound
		}
		return claims.VerificationRequest{}, fmt.Errorf("get verification request: %w", err)
	}
	return req, nil
}

// CountCreatedSince counts the user's requests created after since.
func (s *RequestStore) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM verification_requests WHERE user_id = $1 AND created_at > $2;`
	var n int
	if err := s.pool.QueryRow(ctx, query, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count verification requests: %w", err)
	}
	return n, nil
}

// MarkCrawling moves pending -> crawling and records the target URL.
func (s *RequestStore) MarkCrawling(ctx context.Context, id, targetURL string) error {
	query := `
		UPDATE verification_requests
		SET status = $1, target_url = $2
		WHERE id = $3 AND status = $4;
	`
	return s.guardedUpdate(ctx, id, query, claims.StatusCrawling, targetURL, id, claims.StatusPending)
}

// RevertCrawling moves crawling -> pending, undoing a hand-off that never
// reached the crawl queue.
func (s *RequestStore) RevertCrawling(ctx context.Context, id string) error {
	query := `
		UPDATE verification_requests
		SET status = $1
		WHERE id = $2 AND status = $3;
	`
	return s.guardedUpdate(ctx, id, query, claims.StatusPending, id, claims.StatusCrawling)
}

// MarkExpired moves pending -> expired.
func (s *RequestStore) MarkExpired(ctx context.Context, id string, _ time.Time) error {
	query := `
		UPDATE verification_requests
		SET status = $1
		WHERE id = $2 AND status = $3;
	`
	return s.guardedUpdate(ctx, id, query, claims.StatusExpired, id, claims.StatusPending)
}

// ExpireOverdue expires every pending request whose deadline has passed and
// returns the affected rows.
func (s *RequestStore) ExpireOverdue(ctx context.Context, now time.Time) ([]claims.VerificationRequest, error) {
	query := `
		UPDATE verification_requests
		SET status = $1
		WHERE status = $2 AND expires_at < $3
		RETURNING ` + requestColumns + `;`
	rows, err := s.pool.Query(ctx, query, claims.StatusExpired, claims.StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("expire overdue requests: %w", err)
	}
	defer rows.Close()

	var expired []claims.VerificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired request: %w", err)
		}
		expired = append(expired, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expire overdue requests: %w", err)
	}
	return expired, nil
}

// FinishCrawl moves crawling -> approved or awaiting_admin and records the
// crawler response.
func (s *RequestStore) FinishCrawl(ctx context.Context, id string, status claims.Status, resp claims.CrawlerResponse, now time.Time) error {
	if status != claims.StatusApproved && status != claims.StatusAwaitingAdmin {
		return claims.ErrInvalidState
	}
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal crawler response: %w", err)
	}
	query := `
		UPDATE verification_requests
		SET status = $1, crawled_at = $2, crawler_response = $3
		WHERE id = $4 AND status = $5;
	`
	return s.guardedUpdate(ctx, id, query, status, now, respJSON, id, claims.StatusCrawling)
}

// Review moves awaiting_admin -> approved or denied.
func (s *RequestStore) Review(ctx context.Context, id string, status claims.Status, notes string, now time.Time) error {
	if status != claims.StatusApproved && status != claims.StatusDenied {
		return claims.ErrInvalidState
	}
	query := `
		UPDATE verification_requests
		SET status = $1, reviewed_at = $2, review_notes = $3
		WHERE id = $4 AND status = $5;
	`
	return s.guardedUpdate(ctx, id, query, status, now, notes, id, claims.StatusAwaitingAdmin)
}

// ListByStatus returns up to limit requests in the given status, oldest first.
func (s *RequestStore) ListByStatus(ctx context.Context, status claims.Status, limit int) ([]claims.VerificationRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM verification_requests
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2;
	`
	rows, err := s.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list verification requests: %w", err)
	}
	defer rows.Close()

	var out []claims.VerificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verification requests: %w", err)
	}
	return out, nil
}

// guardedUpdate runs a status-guarded UPDATE and maps a zero row count to
// ErrNotFound or ErrInvalidState depending on whether the row exists.
func (s *RequestStore) guardedUpdate(ctx context.Context, id, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update verification request: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM verification_requests WHERE id = $1);`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check verification request: %w", err)
	}
	if !exists {
		return claims.ErrNotFound
	}
	return claims.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (claims.VerificationRequest, error) {
	var (
		req       claims.VerificationRequest
		targetURL *string
		notes     *string
		respJSON  []byte
	)
	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.ArtistName,
		&req.ClaimCode,
		&targetURL,
		&req.Status,
		&req.ExpiresAt,
		&req.CrawledAt,
		&req.ReviewedAt,
		&notes,
		&respJSON,
		&req.CreatedAt,
	)
	if err != nil {
		return claims.VerificationRequest{}, err
	}
	if targetURL != nil {
		req.TargetURL = *targetURL
	}
	if notes != nil {
		req.ReviewNotes = *notes
	}
	if len(respJSON) > 0 {
		var resp claims.CrawlerResponse
		if err := json.Unmarshal(respJSON, &resp); err != nil {
			return claims.VerificationRequest{}, fmt.Errorf("unmarshal crawler response: %w", err)
		}
		req.CrawlerResponse = &resp
	}
	return req, nil
}
