package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	KindKey    = attribute.Key("poker.kind")
	CodeKey    = attribute.Key("poker.code")
	OutcomeKey = attribute.Key("poker.outcome")
)

// Metrics holds the service counters. The zero value is not usable; build
// one with NewMetrics.
type Metrics struct {
	WSConnections     metric.Int64UpDownCounter
	WSViolations      metric.Int64Counter
	Mutations         metric.Int64Counter
	IdempotentReplays metric.Int64Counter
	SweepForced       metric.Int64Counter
	SweepTablesClosed metric.Int64Counter
	SweepSkipped      metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.WSConnections, err = meter.Int64UpDownCounter("ws.connections",
		metric.WithDescription("Open websocket connections")); err != nil {
		return nil, err
	}
	if m.WSViolations, err = meter.Int64Counter("ws.violations",
		metric.WithDescription("Protocol violations by code")); err != nil {
		return nil, err
	}
	if m.Mutations, err = meter.Int64Counter("poker.mutations",
		metric.WithDescription("Table mutations by kind and outcome")); err != nil {
		return nil, err
	}
	if m.IdempotentReplays, err = meter.Int64Counter("poker.idempotent_replays",
		metric.WithDescription("Mutations answered from the idempotency store")); err != nil {
		return nil, err
	}
	if m.SweepForced, err = meter.Int64Counter("sweep.forced_actions",
		metric.WithDescription("Default actions applied on expired turns")); err != nil {
		return nil, err
	}
	if m.SweepTablesClosed, err = meter.Int64Counter("sweep.tables_closed",
		metric.WithDescription("Tables closed by the sweep")); err != nil {
		return nil, err
	}
	if m.SweepSkipped, err = meter.Int64Counter("sweep.skipped",
		metric.WithDescription("Tables skipped because they were busy")); err != nil {
		return nil, err
	}
	return &m, nil
}

var global *Metrics

func init() {
	// instruments from the global meter follow a provider installed later by Init
	m, err := NewMetrics(otel.Meter("poker-service"))
	if err != nil {
		panic(err)
	}
	global = m
}

// M returns the process-wide metrics.
func M() *Metrics {
	return global
}

// Mutation records one table mutation outcome.
func (m *Metrics) Mutation(ctx context.Context, kind, outcome string) {
	m.Mutations.Add(ctx, 1, metric.WithAttributes(KindKey.String(kind), OutcomeKey.String(outcome)))
}

func (m *Metrics) Replay(ctx context.Context, kind string) {
	m.IdempotentReplays.Add(ctx, 1, metric.WithAttributes(KindKey.String(kind)))
}

func (m *Metrics) Violation(ctx context.Context, code string) {
	m.WSViolations.Add(ctx, 1, metric.WithAttributes(CodeKey.String(code)))
}
