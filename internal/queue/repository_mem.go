package queue

import (
	"context"
	"sync"

	"Matchmaking/internal/apierr"
)

type memRepo struct {
	mu      sync.Mutex
	entries map[string]*Entry // playerID -> entry
}

func NewMemoryRepo() Repo {
	return &memRepo{entries: make(map[string]*Entry)}
}

func (m *memRepo) Insert(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.PlayerID]; ok {
		return apierr.ErrAlreadyQueued
	}
	cp := *e
	m.entries[e.PlayerID] = &cp
	return nil
}

func (m *memRepo) Delete(ctx context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[playerID]; !ok {
		return apierr.ErrNotQueued
	}
	delete(m.entries, playerID)
	return nil
}

func (m *memRepo) Get(ctx context.Context, playerID string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[playerID]
	if !ok {
		return nil, apierr.ErrNotQueued
	}
	cp := *e
	return &cp, nil
}

func (m *memRepo) List(ctx context.Context) ([]*Entry, error) {
	m.mu.Lock()
	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		out = append(out, &cp)
	}
	m.mu.Unlock()
	sortEntries(out)
	return out, nil
}

func (m *memRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}
