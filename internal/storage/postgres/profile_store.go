package postgres

import (
	"context"
	"fmt"
	"time"
)

// ProfileStore updates the artist_profiles table owned by the wider platform.
// Verification only ever flips a profile to verified; clearing the flag is an
// account-management concern outside this service.
type ProfileStore struct {
	pool dbPool
}

// NewProfileStore connects a pool and wraps it in a ProfileStore.
func NewProfileStore(ctx context.Context, cfg PoolConfig) (*ProfileStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ProfileStore{pool: pool}, nil
}

// NewProfileStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProfileStoreWithPool(pool dbPool) (*ProfileStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ProfileStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ProfileStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertVerified marks the user's profile verified under the given artist name.
func (s *ProfileStore) UpsertVerified(ctx context.Context, userID, artistName string, verifiedAt time.Time) error {
	query := `
		INSERT INTO artist_profiles (user_id, artist_name, verified, verified_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET artist_name = EXCLUDED.artist_name,
			verified = TRUE,
			verified_at = EXCLUDED.verified_at;
	`
	if _, err := s.pool.Exec(ctx, query, userID, artistName, verifiedAt); err != nil {
		return fmt.Errorf("upsert artist profile: %w", err)
	}
	return nil
}
