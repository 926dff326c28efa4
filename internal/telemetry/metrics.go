package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "db-user-sync/internal/sync"

// Row outcomes recorded by SyncMetrics.
const (
	OutcomeAdded   = "added"
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
)

// SyncMetrics records per-run spans and counters for the synchronization engine.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	tracer   trace.Tracer
	rows     metric.Int64Counter
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewSyncMetrics creates the instruments on mp and tp; nil uses the global providers.
func NewSyncMetrics(mp metric.MeterProvider, tp trace.TracerProvider) (*SyncMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	meter := mp.Meter(instrumentationName)
	rows, err := meter.Int64Counter("sync.users",
		metric.WithDescription("Users processed by synchronization runs, by outcome."),
		metric.WithUnit("{user}"))
	if err != nil {
		return nil, err
	}
	runs, err := meter.Int64Counter("sync.runs",
		metric.WithDescription("Synchronization runs, by variant and status."),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("sync.run.duration",
		metric.WithDescription("Wall time of synchronization runs."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &SyncMetrics{tracer: tp.Tracer(instrumentationName), rows: rows, runs: runs, duration: duration}, nil
}

// StartRun opens the sync.run span.
func (m *SyncMetrics) StartRun(ctx context.Context, providerID, variant, importID string) (context.Context, trace.Span) {
	if m == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.tracer.Start(ctx, "sync.run", trace.WithAttributes(
		attribute.String("sync.provider", providerID),
		attribute.String("sync.variant", variant),
		attribute.String("sync.import_id", importID),
	))
}

// StartRow opens the sync.row span for one user import.
func (m *SyncMetrics) StartRow(ctx context.Context, username string) (context.Context, trace.Span) {
	if m == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.tracer.Start(ctx, "sync.row", trace.WithAttributes(attribute.String("sync.username", username)))
}

// RecordRow counts one row outcome and marks span failed when err is non-nil.
func (m *SyncMetrics) RecordRow(ctx context.Context, span trace.Span, providerID, outcome string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if m == nil {
		return
	}
	m.rows.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sync.provider", providerID),
		attribute.String("sync.outcome", outcome),
	))
}

// RecordRun records the run duration and status and ends nothing; the caller ends its span.
func (m *SyncMetrics) RecordRun(ctx context.Context, span trace.Span, providerID, variant string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("sync.provider", providerID),
		attribute.String("sync.variant", variant),
		attribute.String("sync.status", status),
	)
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
