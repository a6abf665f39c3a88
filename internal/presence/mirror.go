package presence

import (
	"context"
	"time"

	"poker-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMirror keeps a set of member user ids per table in Redis so other
// processes and operators can inspect presence.
type RedisMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisMirror(rdb *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{rdb: rdb, ttl: ttl}
}

func buildPresenceKey(tableID string) string {
	return "poker:presence:" + tableID
}

func (m *RedisMirror) Added(ctx context.Context, tableID, userID string) {
	key := buildPresenceKey(tableID)
	pipe := m.rdb.TxPipeline()
	pipe.SAdd(ctx, key, userID)
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("presence mirror add failed", zap.String("tableId", tableID), zap.Error(err))
	}
}

func (m *RedisMirror) Removed(ctx context.Context, tableID, userID string) {
	if err := m.rdb.SRem(ctx, buildPresenceKey(tableID), userID).Err(); err != nil {
		logger.Log.Warn("presence mirror remove failed", zap.String("tableId", tableID), zap.Error(err))
	}
}
