package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the tracklet tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("tracklet")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartDeliverySpan starts a span for one batch delivery cycle
	// (encode plus every attempt until the batch settles).
	StartDeliverySpan(ctx context.Context, batchID int64, events int) (context.Context, trace.Span)

	// StartAttemptSpan starts a span for a single network attempt,
	// a child of the delivery span.
	StartAttemptSpan(ctx context.Context, attempt int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartDeliverySpan starts a span for one batch delivery cycle.
func (m *otelSpanManager) StartDeliverySpan(ctx context.Context, batchID int64, events int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tracklet.delivery",
		trace.WithAttributes(
			attribute.Int64("batch.id", batchID),
			attribute.Int("batch.events", events),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartAttemptSpan starts a span for a single network attempt.
func (m *otelSpanManager) StartAttemptSpan(ctx context.Context, attempt int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tracklet.delivery.attempt",
		trace.WithAttributes(
			attribute.Int("attempt", attempt),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
