package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStream struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewRedisStream(rdb *redis.Client, stream string, maxLen int64) Publisher {
	if stream == "" {
		stream = "poker:table-events"
	}
	return &redisStream{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (p *redisStream) Publish(ctx context.Context, evt Event) error {
	b, err := evt.encode()
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{"kind": string(evt.Kind), "tableId": evt.TableID, "data": string(b)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.XAdd(ctx, args).Err()
}

// the client is shared with the rest of the process
func (p *redisStream) Close() error { return nil }
