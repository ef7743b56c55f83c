package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEvent records one accepted or rejected track call.
	RecordEvent(ctx context.Context, name string, valid bool)

	// RecordBatch records a settled delivery: event count, outcome,
	// and end-to-end attempt duration.
	RecordBatch(ctx context.Context, events int, outcome string, duration time.Duration)

	// RecordPayload records encoded payload sizes.
	RecordPayload(ctx context.Context, rawBytes, wireBytes int64)

	// RecordDrop records overflow-dropped events.
	RecordDrop(ctx context.Context, count int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	events       metric.Int64Counter
	batches      metric.Int64Counter
	batchLatency metric.Float64Histogram
	payloadBytes metric.Int64Histogram
	drops        metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("tracklet")

	events, err := meter.Int64Counter("tracklet.events",
		metric.WithDescription("Number of track calls"),
	)
	if err != nil {
		return nil, err
	}

	batches, err := meter.Int64Counter("tracklet.batches",
		metric.WithDescription("Number of settled delivery batches"),
	)
	if err != nil {
		return nil, err
	}

	batchLatency, err := meter.Float64Histogram("tracklet.batch.latency_ms",
		metric.WithDescription("Batch delivery latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	payloadBytes, err := meter.Int64Histogram("tracklet.payload.wire_bytes",
		metric.WithDescription("Encoded payload size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	drops, err := meter.Int64Counter("tracklet.events.dropped",
		metric.WithDescription("Number of events shed by queue overflow"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		events:       events,
		batches:      batches,
		batchLatency: batchLatency,
		payloadBytes: payloadBytes,
		drops:        drops,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEvent records one track call.
func (m *otelMetrics) RecordEvent(ctx context.Context, name string, valid bool) {
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_name", name),
		attribute.Bool("valid", valid),
	))
}

// RecordBatch records a settled delivery.
func (m *otelMetrics) RecordBatch(ctx context.Context, events int, outcome string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
	}
	m.batches.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.batchLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordPayload records encoded payload sizes.
func (m *otelMetrics) RecordPayload(ctx context.Context, rawBytes, wireBytes int64) {
	m.payloadBytes.Record(ctx, wireBytes, metric.WithAttributes(
		attribute.Int64("raw_bytes", rawBytes),
	))
}

// RecordDrop records overflow-dropped events.
func (m *otelMetrics) RecordDrop(ctx context.Context, count int64) {
	m.drops.Add(ctx, count)
}
