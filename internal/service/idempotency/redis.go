package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) Backend {
	return &redisBackend{rdb: rdb}
}

func buildIdemKey(key Key) string {
	return "poker:idem:" + key.String()
}

func (b *redisBackend) Load(ctx context.Context, key Key) (Entry, bool, error) {
	raw, err := b.rdb.Get(ctx, buildIdemKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (b *redisBackend) Save(ctx context.Context, key Key, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	// first writer wins, matching the LRU semantics
	return b.rdb.SetNX(ctx, buildIdemKey(key), raw, ttl).Err()
}
