package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

func TestPageCacheGetHit(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cache, err := NewPageCacheWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM page_cache").
		WithArgs("https://a.example/about", now).
		WillReturnRows(pgxmock.NewRows([]string{"url", "content", "crawled_at", "expires_at"}).
			AddRow("https://a.example/about", "bio SEDA-AB12CD34", now.Add(-time.Hour), now.Add(23*time.Hour)))

	entry, ok, err := cache.Get(context.Background(), "https://a.example/about", now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bio SEDA-AB12CD34", entry.Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPageCacheGetMiss(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cache, err := NewPageCacheWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM page_cache").
		WithArgs("https://a.example/about", now).
		WillReturnRows(pgxmock.NewRows([]string{"url", "content", "crawled_at", "expires_at"}))

	_, ok, err := cache.Get(context.Background(), "https://a.example/about", now)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPageCachePutUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cache, err := NewPageCacheWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	entry := claims.PageCacheEntry{
		URL:       "https://a.example/about",
		Content:   "bio SEDA-AB12CD34",
		CrawledAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	mock.ExpectExec("INSERT INTO page_cache").
		WithArgs(entry.URL, entry.Content, entry.CrawledAt, entry.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, cache.Put(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileStoreUpsertVerified(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProfileStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO artist_profiles").
		WithArgs("user-1", "The Lowlands", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertVerified(context.Background(), "user-1", "The Lowlands", now))
	require.NoError(t, mock.ExpectationsWereMet())
}
