package events

import (
	"context"
	"encoding/json"
	"time"

	"poker-service/internal/config"
	"poker-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Kind string

const (
	KindTableCreated Kind = "table.created"
	KindTableClosed  Kind = "table.closed"
	KindHandStarted  Kind = "hand.started"
	KindHandSettled  Kind = "hand.settled"
	KindSeatJoined   Kind = "seat.joined"
	KindSeatLeft     Kind = "seat.left"
	KindSeatEvicted  Kind = "seat.evicted"
)

// Event is the envelope written to the outbound stream.
type Event struct {
	Kind    Kind            `json:"kind"`
	TableID string          `json:"tableId"`
	Version int64           `json:"version"`
	UserID  string          `json:"userId,omitempty"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher ships table events to downstream consumers. Callers treat
// publish failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type noop struct{}

func NewNoop() Publisher { return noop{} }

func (noop) Publish(context.Context, Event) error { return nil }
func (noop) Close() error                         { return nil }

// New picks a publisher from the events config. rdb is required for the
// redis driver and ignored otherwise.
func New(cfg config.EventsConfig, rdb *redis.Client) Publisher {
	switch cfg.Driver {
	case "kafka":
		if len(cfg.Brokers) == 0 {
			logger.Log.Warn("kafka events requested without brokers; using noop")
			return NewNoop()
		}
		logger.Log.Info("kafka event publisher enabled", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
		return NewKafka(cfg.Brokers, cfg.Topic)
	case "redis":
		if rdb == nil {
			logger.Log.Warn("redis events requested but redis is disabled; using noop")
			return NewNoop()
		}
		logger.Log.Info("redis stream event publisher enabled", zap.String("stream", cfg.Stream))
		return NewRedisStream(rdb, cfg.Stream, cfg.MaxLen)
	case "", "noop":
		return NewNoop()
	default:
		logger.Log.Warn("unsupported events driver; using noop", zap.String("driver", cfg.Driver))
		return NewNoop()
	}
}

// Recorder is a Publisher that keeps events in memory.
type Recorder struct {
	ch chan Event
}

func NewRecorder(buffer int) *Recorder {
	return &Recorder{ch: make(chan Event, buffer)}
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	select {
	case r.ch <- evt:
	default:
	}
	return nil
}

func (r *Recorder) Close() error { return nil }

// Drain returns everything recorded so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}
