package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

// ProfileStore keeps artist profiles in a map keyed by user ID.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]claims.ArtistProfile
}

// NewProfileStore constructs a ProfileStore.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[string]claims.ArtistProfile),
	}
}

// UpsertVerified marks the user's profile verified under the given artist
// name.
func (s *ProfileStore) UpsertVerified(_ context.Context, userID, artistName string, verifiedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = claims.ArtistProfile{
		UserID:     userID,
		ArtistName: artistName,
		Verified:   true,
		VerifiedAt: timePtr(verifiedAt),
	}
	return nil
}

// Get returns the stored profile for a user, if any. Used by tests.
func (s *ProfileStore) Get(userID string) (claims.ArtistProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	return p, ok
}
