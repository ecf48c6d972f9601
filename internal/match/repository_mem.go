package match

import (
	"context"
	"sort"
	"sync"

	"Matchmaking/internal/apierr"
	"Matchmaking/internal/rating"
)

type memRepo struct {
	mu      sync.RWMutex
	matches map[string]*Match
}

func NewMemoryRepo() Repo {
	return &memRepo{matches: make(map[string]*Match)}
}

func (r *memRepo) Create(ctx context.Context, m *Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[m.ID] = m.clone()
	return nil
}

func (r *memRepo) Get(ctx context.Context, id string) (*Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, apierr.ErrMatchNotFound
	}
	return m.clone(), nil
}

func (r *memRepo) collect(keep func(*Match) bool) []*Match {
	r.mu.RLock()
	out := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		if keep(m) {
			out = append(out, m.clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *memRepo) List(ctx context.Context) ([]*Match, error) {
	return r.collect(func(*Match) bool { return true }), nil
}

func (r *memRepo) ListByPlayer(ctx context.Context, playerID string) ([]*Match, error) {
	return r.collect(func(m *Match) bool { return m.HasPlayer(playerID) }), nil
}

func (r *memRepo) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matches)), nil
}

func (r *memRepo) BeginSettlement(ctx context.Context, id string, s *rating.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	switch {
	case !ok:
		return apierr.ErrMatchNotFound
	case m.Status != StatusInProgress:
		return apierr.ErrAlreadyCompleted
	case m.Settlement != nil:
		return apierr.ErrSettlementPending
	}
	cp := *s
	m.Settlement = &cp
	return nil
}

func (r *memRepo) SaveSettlement(ctx context.Context, id string, s *rating.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return apierr.ErrMatchNotFound
	}
	if m.Status != StatusInProgress {
		return apierr.ErrAlreadyCompleted
	}
	cp := *s
	m.Settlement = &cp
	return nil
}

func (r *memRepo) Transition(ctx context.Context, next *Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[next.ID]
	if !ok {
		return apierr.ErrMatchNotFound
	}
	if m.Status != StatusInProgress {
		return apierr.ErrAlreadyCompleted
	}
	stored := next.clone()
	stored.Settlement = nil
	r.matches[next.ID] = stored
	return nil
}
