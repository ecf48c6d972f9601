package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"Matchmaking/internal/apierr"
)

type redisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) Repo {
	return &redisRepo{rdb: rdb}
}

// key layout:
//
//	zset: mm:queue                 -> member playerID, score = mmr snapshot
//	kv  : mm:queue:entry:{player}  -> entry JSON; its existence is the membership
const queueKey = "mm:queue"

func entryKey(playerID string) string {
	return fmt.Sprintf("mm:queue:entry:%s", playerID)
}

// KEYS[1] = entry key, KEYS[2] = queue zset, ARGV[1] = entry JSON, ARGV[2] = mmr, ARGV[3] = playerID
var insertScript = redis.NewScript(`
	if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
		return 0
	end
	redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
	return 1
`)

// KEYS[1] = entry key, KEYS[2] = queue zset, ARGV[1] = playerID
var deleteScript = redis.NewScript(`
	if redis.call("DEL", KEYS[1]) == 0 then
		return 0
	end
	redis.call("ZREM", KEYS[2], ARGV[1])
	if redis.call("ZCARD", KEYS[2]) == 0 then
		redis.call("DEL", KEYS[2])
	end
	return 1
`)

func (r *redisRepo) Insert(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ok, err := insertScript.Run(ctx, r.rdb, []string{entryKey(e.PlayerID), queueKey}, data, e.MMR, e.PlayerID).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return apierr.ErrAlreadyQueued
	}
	return nil
}

func (r *redisRepo) Delete(ctx context.Context, playerID string) error {
	ok, err := deleteScript.Run(ctx, r.rdb, []string{entryKey(playerID), queueKey}, playerID).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return apierr.ErrNotQueued
	}
	return nil
}

func (r *redisRepo) Get(ctx context.Context, playerID string) (*Entry, error) {
	data, err := r.rdb.Get(ctx, entryKey(playerID)).Bytes()
	if err == redis.Nil {
		return nil, apierr.ErrNotQueued
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *redisRepo) List(ctx context.Context) ([]*Entry, error) {
	ids, err := r.rdb.ZRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Entry{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entryKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// removed between ZRANGE and MGET
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	// the zset orders by mmr only; joinedAt breaks ties
	sortEntries(out)
	return out, nil
}

func (r *redisRepo) Count(ctx context.Context) (int64, error) {
	return r.rdb.ZCard(ctx, queueKey).Result()
}
