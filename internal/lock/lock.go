package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// Unlock releases a held key. It is safe to call more than once.
type Unlock func()

// Locker serializes work per key.
type Locker interface {
	// Lock blocks until key is held or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
}

// LockAll takes every key in sorted order so two callers sharing keys cannot deadlock.
func LockAll(ctx context.Context, l Locker, keys ...string) (Unlock, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var held []Unlock
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	prev := ""
	for i, k := range sorted {
		if i > 0 && k == prev {
			continue
		}
		prev = k
		u, err := l.Lock(ctx, k)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, u)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

type memEntry struct {
	ch   chan struct{}
	refs int
}

type memLocker struct {
	mu   sync.Mutex
	keys map[string]*memEntry
}

// NewMemoryLocker returns an in-process keyed mutex.
func NewMemoryLocker() Locker {
	return &memLocker{keys: make(map[string]*memEntry)}
}

func (m *memLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	m.mu.Lock()
	e, ok := m.keys[key]
	if !ok {
		e = &memEntry{ch: make(chan struct{}, 1)}
		m.keys[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, e, true) })
	}, nil
}

func (m *memLocker) release(key string, e *memEntry, held bool) {
	if held {
		<-e.ch
	}
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.keys, key)
	}
	m.mu.Unlock()
}
