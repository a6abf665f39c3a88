package repo

import (
	"context"
	"time"

	"poker-service/internal/config"
	"poker-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RDB *redis.Client

// InitRedis leaves RDB nil when redis is disabled; callers treat a nil
// client as "single node, no shared cache".
func InitRedis() {
	conf := config.GlobalConfig.Redis
	if !conf.Enabled {
		logger.Log.Info("Redis disabled")
		return
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := RDB.Ping(ctx).Result(); err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
}
