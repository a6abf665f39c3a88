package sweep

import (
	"context"
	"time"

	"poker-service/internal/service/poker"
	"poker-service/internal/telemetry"
	"poker-service/pkg/logger"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Target is the table authority the worker reconciles.
type Target interface {
	TableIDs() []string
	SweepTable(ctx context.Context, tableID string, now time.Time) (poker.SweepReport, error)
}

// Purger drops expired idempotency records from durable storage.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Result aggregates one pass over every table.
type Result struct {
	Scanned      int
	Forced       int
	Inactivated  int
	BotsEvicted  int
	TablesClosed int
	Skipped      int
	Failed       int
	Purged       int64
}

type Worker struct {
	target   Target
	purger   Purger
	interval time.Duration
	now      func() time.Time
}

type Option func(*Worker)

func WithPurger(p Purger) Option {
	return func(w *Worker) { w.purger = p }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func NewWorker(target Target, interval time.Duration, opts ...Option) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	w := &Worker{target: target, interval: interval, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run sweeps on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	logger.Log.Info("sweep worker started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("sweep worker stopped")
			return nil
		case <-ticker.C:
			res := w.RunOnce(ctx)
			if res.Forced+res.BotsEvicted+res.TablesClosed+res.Failed > 0 {
				logger.Log.Info("sweep pass",
					zap.Int("scanned", res.Scanned),
					zap.Int("forced", res.Forced),
					zap.Int("inactivated", res.Inactivated),
					zap.Int("botsEvicted", res.BotsEvicted),
					zap.Int("tablesClosed", res.TablesClosed),
					zap.Int("skipped", res.Skipped),
					zap.Int("failed", res.Failed),
				)
			}
		}
	}
}

// RunOnce performs a single pass. A failing table is logged and counted;
// it never stops the pass.
func (w *Worker) RunOnce(ctx context.Context) Result {
	var res Result
	now := w.now()
	m := telemetry.M()

	for _, id := range w.target.TableIDs() {
		if ctx.Err() != nil {
			break
		}
		res.Scanned++
		rep, err := w.target.SweepTable(ctx, id, now)
		if err != nil {
			res.Failed++
			logger.Log.Warn("sweep table failed", zap.String("tableId", id), zap.Error(err))
			continue
		}
		res.Forced += rep.Forced
		res.Inactivated += rep.Inactivated
		res.BotsEvicted += rep.BotsEvicted
		if rep.Closed {
			res.TablesClosed++
		}
		if rep.Skipped {
			res.Skipped++
		}
	}

	if res.Forced > 0 {
		m.SweepForced.Add(ctx, int64(res.Forced))
	}
	if res.TablesClosed > 0 {
		m.SweepTablesClosed.Add(ctx, int64(res.TablesClosed))
	}
	if res.Skipped > 0 {
		m.SweepSkipped.Add(ctx, int64(res.Skipped), metric.WithAttributes(telemetry.OutcomeKey.String("busy_or_mid_hand")))
	}

	if w.purger != nil {
		n, err := w.purger.Purge(ctx, now)
		if err != nil {
			logger.Log.Warn("purge idempotency records failed", zap.Error(err))
		}
		res.Purged = n
	}
	return res
}
