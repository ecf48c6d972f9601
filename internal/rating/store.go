package rating

import (
	"context"
	"sync"
)

// DefaultRating is what the identity service gives a new player.
const DefaultRating = 1000

// Store reads and writes a player's current rating in the identity service.
type Store interface {
	GetRating(ctx context.Context, playerID string) (int, error)
	// SetRating writes an absolute rating. A token that was already applied
	// for this player must not be applied again.
	SetRating(ctx context.Context, playerID string, rating int, token string) error
}

type MemoryStore struct {
	mu      sync.Mutex
	ratings map[string]int
	applied map[string]struct{} // playerID|token
}

// NewMemoryStore is used when no identity service is configured and in tests.
// Unknown players start at DefaultRating.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ratings: make(map[string]int),
		applied: make(map[string]struct{}),
	}
}

func (m *MemoryStore) Seed(playerID string, rating int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings[playerID] = rating
}

func (m *MemoryStore) GetRating(ctx context.Context, playerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ratings[playerID]
	if !ok {
		return DefaultRating, nil
	}
	return r, nil
}

func (m *MemoryStore) SetRating(ctx context.Context, playerID string, rating int, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token != "" {
		k := playerID + "|" + token
		if _, dup := m.applied[k]; dup {
			return nil
		}
		m.applied[k] = struct{}{}
	}
	m.ratings[playerID] = rating
	return nil
}
