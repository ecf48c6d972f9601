package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"Matchmaking/internal/utils"
)

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

type redisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
}

// NewRedisLocker returns a Locker shared by every instance using rdb.
// ttl bounds how long a crashed holder can block a key.
func NewRedisLocker(rdb *redis.Client, ttl, retry time.Duration) Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if retry <= 0 {
		retry = 20 * time.Millisecond
	}
	return &redisLocker{rdb: rdb, ttl: ttl, retry: retry}
}

func lockKey(key string) string {
	return "mm:lock:" + key
}

func (r *redisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	owner := uuid.NewString()
	k := lockKey(key)
	for {
		ok, err := r.rdb.SetNX(ctx, k, owner, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release must outlive the request context
			n, err := releaseScript.Run(context.Background(), r.rdb, []string{k}, owner).Int()
			if err != nil {
				utils.Warn("lock release failed", "key", key, "err", err)
				return
			}
			if n == 0 {
				utils.Warn("lock expired before release", "key", key)
			}
		})
	}, nil
}
