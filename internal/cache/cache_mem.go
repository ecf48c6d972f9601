package cache

import (
	"context"
	"sync"
	"time"
)

type item struct {
	data []byte
	exp  time.Time
}

type memCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]item
	gen   int64
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration) Cache {
	return &memCache{ttl: ttl, items: make(map[string]item), now: time.Now}
}

func (m *memCache) live(key string) (item, bool) {
	it, ok := m.items[key]
	if !ok {
		return item{}, false
	}
	if m.ttl > 0 && m.now().After(it.exp) {
		delete(m.items, key)
		return item{}, false
	}
	return it, true
}

func (m *memCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	it, ok := m.live(key)
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, decode(it.data, dst)
}

func (m *memCache) Set(ctx context.Context, key string, v any) error {
	b, err := encode(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = item{data: b, exp: m.now().Add(m.ttl)}
	return nil
}

func (m *memCache) Add(ctx context.Context, key string, v any) (bool, error) {
	b, err := encode(v)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.items[key] = item{data: b, exp: m.now().Add(m.ttl)}
	return true, nil
}

func (m *memCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *memCache) Generation(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen, nil
}

func (m *memCache) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	// old collection slots can never be read again
	for k := range m.items {
		if len(k) > 4 && k[:4] == "gen:" {
			delete(m.items, k)
		}
	}
	return nil
}
