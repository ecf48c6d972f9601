package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// key layout:
//
//	mm:cache:{key}          -> JSON snapshot, expires after ttl
//	mm:cache:gen            -> collection generation counter (INCR)
//	mm:cache:gen:{n}:{name} -> collection snapshot for generation n
const redisPrefix = "mm:cache:"

type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache shares invalidations across every instance using rdb.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) Cache {
	return &redisCache{rdb: rdb, ttl: ttl}
}

func (r *redisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := r.rdb.Get(ctx, redisPrefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, decode(b, dst)
}

func (r *redisCache) Set(ctx context.Context, key string, v any) error {
	b, err := encode(v)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, redisPrefix+key, b, r.ttl).Err()
}

func (r *redisCache) Add(ctx context.Context, key string, v any) (bool, error) {
	b, err := encode(v)
	if err != nil {
		return false, err
	}
	return r.rdb.SetNX(ctx, redisPrefix+key, b, r.ttl).Result()
}

func (r *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = redisPrefix + k
	}
	return r.rdb.Del(ctx, full...).Err()
}

func (r *redisCache) Generation(ctx context.Context) (int64, error) {
	n, err := r.rdb.Get(ctx, redisPrefix+"gen").Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (r *redisCache) Invalidate(ctx context.Context) error {
	return r.rdb.Incr(ctx, redisPrefix+"gen").Err()
}
