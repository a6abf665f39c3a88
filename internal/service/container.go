package service

import (
	"context"
	"time"

	"poker-service/internal/config"
	"poker-service/internal/presence"
	"poker-service/internal/service/events"
	"poker-service/internal/service/idempotency"
	"poker-service/internal/service/ledger"
	"poker-service/internal/service/poker"
	"poker-service/internal/service/sweep"
	"poker-service/internal/ws"
	pkgAuth "poker-service/pkg/auth"
	"poker-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Container struct {
	Signer      *pkgAuth.Signer
	Ledger      ledger.Service
	Idempotency *idempotency.Store
	Presence    *presence.Registry
	Events      events.Publisher
	Poker       *poker.Service
	Sweeper     *sweep.Worker
	Gateway     *ws.Gateway
}

// NewContainer wires every service. rdb may be nil when Redis is disabled;
// idempotency records then live in the database and are purged by the sweep.
func NewContainer(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *Container {
	signer := pkgAuth.NewSigner(cfg.JWT.Secret, time.Duration(cfg.JWT.Expire)*time.Hour, cfg.JWT.Issuer)

	var sweepOpts []sweep.Option
	var backend idempotency.Backend
	if rdb != nil {
		backend = idempotency.NewRedisBackend(rdb)
	} else {
		gb := idempotency.NewGormBackend(db)
		backend = gb
		sweepOpts = append(sweepOpts, sweep.WithPurger(gb))
	}
	idem := idempotency.NewStore(cfg.Idempotency.Size, cfg.Idempotency.TTL, backend)

	var presenceOpts []presence.Option
	if rdb != nil {
		mirrorTTL := cfg.Presence.TTL + cfg.Poker.HeartbeatTTL
		presenceOpts = append(presenceOpts, presence.WithMirror(presence.NewRedisMirror(rdb, mirrorTTL)))
	}
	reg := presence.NewRegistry(cfg.Presence.TTL, presenceOpts...)

	led := ledger.NewService(db, cfg.Ledger.StartingBalance)
	pub := events.New(cfg.Events, rdb)

	pokerSvc := poker.NewService(poker.Options{
		Config:      cfg.Poker,
		Store:       poker.NewGormStore(db),
		Ledger:      led,
		Idempotency: idem,
		Presence:    reg,
		Events:      pub,
	})
	reg.SetStateSource(pokerSvc.PresenceView)

	return &Container{
		Signer:      signer,
		Ledger:      led,
		Idempotency: idem,
		Presence:    reg,
		Events:      pub,
		Poker:       pokerSvc,
		Sweeper:     sweep.NewWorker(pokerSvc, cfg.Sweep.Interval, sweepOpts...),
		Gateway:     ws.NewGateway(cfg.Protocol, signer, reg, pokerSvc),
	}
}

// Start reloads open tables from storage.
func (c *Container) Start(ctx context.Context) error {
	n, err := c.Poker.Restore(ctx)
	if err != nil {
		return err
	}
	logger.Log.Info("Restored open tables", zap.Int("count", n))
	return nil
}

// Close stops background work, closing sessions first.
func (c *Container) Close() {
	c.Gateway.Shutdown()
	c.Poker.Close()
	if err := c.Events.Close(); err != nil {
		logger.Log.Warn("closing event publisher", zap.Error(err))
	}
}
