package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

func TestRequestStoreCreateInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRequestStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	req := claims.VerificationRequest{
		ID:         "req-1",
		UserID:     "user-1",
		ArtistName: "The Lowlands",
		ClaimCode:  "SEDA-AB12CD34",
		Status:     claims.StatusPending,
		ExpiresAt:  now.Add(7 * 24 * time.Hour),
		CreatedAt:  now,
	}

	mock.ExpectExec("INSERT INTO verification_requests").
		WithArgs(req.ID, req.UserID, req.ArtistName, req.ClaimCode, req.Status, req.ExpiresAt, req.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), req))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreCreateMapsUniqueViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		constraint string
		want       error
	}{
		{"active request exists", oneActivePerUserIndex, claims.ErrConflictingRequest},
		{"code collision", activeCodeIndex, claims.ErrCodeCollision},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			store, err := NewRequestStoreWithPool(mock)
			require.NoError(t, err)

			mock.ExpectExec("INSERT INTO verification_requests").
				WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tc.constraint})

			err = store.Create(context.Background(), claims.VerificationRequest{ID: "req-1"})
			require.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRequestStoreGetMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRequestStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM verification_requests WHERE id").
		WithArgs("req-1").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Get(context.Background(), "req-1")
	require.ErrorIs(t, err, claims.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreMarkCrawlingGuard(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRequestStoreWithPool(mock)
	require.NoError(t, err)

	// The row exists but already left pending.
	mock.ExpectExec("UPDATE verification_requests").
		WithArgs(claims.StatusCrawling, "https://a.example/about", "req-1", claims.StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err = store.MarkCrawling(context.Background(), "req-1", "https://a.example/about")
	require.ErrorIs(t, err, claims.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreMarkCrawlingMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRequestStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE verification_requests").
		WithArgs(claims.StatusCrawling, "https://a.example/about", "req-1", claims.StatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err = store.MarkCrawling(context.Background(), "req-1", "https://a.example/about")
	require.ErrorIs(t, err, claims.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreRevertCrawling(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRequestStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE verification_requests").
		WithArgs(claims.StatusPending, "req-1", claims.StatusCrawling).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RevertCrawling(context.Background(), "req-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreRevertCrawlingGuard(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRequestStoreWithPool(mock)
	require.NoError(t, err)

	// The row has already moved on from crawling.
	mock.ExpectExec("UPDATE verification_requests").
		WithArgs(claims.StatusPending, "req-1", claims.StatusCrawling).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err = store.RevertCrawling(context.Background(), "req-1")
	require.ErrorIs(t, err, claims.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreFinishCrawlRecordsResponse(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRequestStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	resp := claims.CrawlerResponse{Attempts: 1, Matched: true, MatchedIn: claims.MatchedInMarkup, DurationMs: 420}
	respJSON, err := json.Marshal(resp)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE verification_requests").
		WithArgs(claims.StatusApproved, now, respJSON, "req-1", claims.StatusCrawling).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.FinishCrawl(context.Background(), "req-1", claims.StatusApproved, resp, now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreFinishCrawlRejectsBadTarget(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRequestStoreWithPool(mock)
	require.NoError(t, err)

	err = store.FinishCrawl(context.Background(), "req-1", claims.StatusDenied, claims.CrawlerResponse{}, time.Now())
	require.ErrorIs(t, err, claims.ErrInvalidState)
}

func TestRequestStoreExpireOverdueReturnsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRequestStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "artist_name", "claim_code", "target_url", "status",
		"expires_at", "crawled_at", "reviewed_at", "review_notes", "crawler_response", "created_at",
	}).AddRow(
		"req-1", "user-1", "The Lowlands", "SEDA-AB12CD34", nil, claims.StatusExpired,
		now.Add(-time.Hour), (*time.Time)(nil), (*time.Time)(nil), nil, []byte(nil), now.Add(-8*24*time.Hour),
	)

	mock.ExpectQuery("UPDATE verification_requests").
		WithArgs(claims.StatusExpired, claims.StatusPending, now).
		WillReturnRows(rows)

	expired, err := store.ExpireOverdue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "req-1", expired[0].ID)
	require.Equal(t, claims.StatusExpired, expired[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
