package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/singleflight"

	"Matchmaking/internal/utils"
)

// Cache holds JSON snapshots of entities and collection queries.
//
// Entity slots are written through by every mutation (Set) and filled by
// readers only when empty (Add), so a slow reader can never overwrite a newer
// write. Collection slots live under a generation number; Invalidate bumps it
// and every collection cached before that becomes unreachable.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Add(ctx context.Context, key string, v any) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Generation(ctx context.Context) (int64, error)
	Invalidate(ctx context.Context) error
}

var group singleflight.Group

// Fetch is a read-through lookup of one entity slot.
func Fetch[T any](ctx context.Context, c Cache, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	ok, err := c.Get(ctx, key, &v)
	if err != nil {
		utils.Warn("cache get failed", "key", key, "err", err)
	} else if ok {
		return v, nil
	}

	res, err, _ := group.Do(fmt.Sprintf("%p|%s", c, key), func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return loaded, err
		}
		added, err := c.Add(ctx, key, loaded)
		if err != nil {
			utils.Warn("cache fill failed", "key", key, "err", err)
			return loaded, nil
		}
		if !added {
			// a writer got there first; its value is at least as new as ours
			var newer T
			if ok, err := c.Get(ctx, key, &newer); err == nil && ok {
				return newer, nil
			}
		}
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// FetchCollection is a read-through lookup of a collection query.
func FetchCollection[T any](ctx context.Context, c Cache, name string, load func(context.Context) (T, error)) (T, error) {
	gen, err := c.Generation(ctx)
	if err != nil {
		utils.Warn("cache generation unavailable", "err", err)
		return load(ctx)
	}
	return Fetch(ctx, c, CollectionKey(gen, name), load)
}

func CollectionKey(gen int64, name string) string {
	return fmt.Sprintf("gen:%d:%s", gen, name)
}

// Put writes an entity slot and drops every collection; mutations call this
// after the store write succeeded. It runs even if ctx was cancelled meanwhile,
// since the store already holds the new value.
func Put(ctx context.Context, c Cache, key string, v any) {
	ctx = context.WithoutCancel(ctx)
	if err := c.Set(ctx, key, v); err != nil {
		utils.Error("cache put failed", "key", key, "err", err)
		// make sure the stale slot does not survive
		_ = c.Delete(ctx, key)
	}
	if err := c.Invalidate(ctx); err != nil {
		utils.Error("cache invalidate failed", "err", err)
	}
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decode(b []byte, dst any) error {
	return json.Unmarshal(b, dst)
}
