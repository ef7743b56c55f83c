package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopMetrics_DoesNothing(t *testing.T) {
	m := NoopMetrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordEvent(ctx, "page_view", true)
		m.RecordEvent(ctx, "", false)
		m.RecordBatch(ctx, 50, "success", 100*time.Millisecond)
		m.RecordBatch(ctx, 0, "", 0)
		m.RecordPayload(ctx, 1024, 256)
		m.RecordPayload(ctx, 0, 0)
		m.RecordDrop(ctx, 3)
		m.RecordDrop(ctx, 0)
	})
}

func TestNoopSpanManager_ReturnsSameContext(t *testing.T) {
	sm := NoopSpanManager{}
	ctx := context.Background()

	newCtx, span := sm.StartDeliverySpan(ctx, 1, 10)
	assert.Equal(t, ctx, newCtx, "Context should be unchanged")
	assert.NotNil(t, span)
	assert.False(t, span.IsRecording())

	newCtx, span = sm.StartAttemptSpan(ctx, 2)
	assert.Equal(t, ctx, newCtx)
	assert.False(t, span.IsRecording())
}

func TestNoopSpanManager_DoesNotPanic(t *testing.T) {
	sm := NoopSpanManager{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		sm.EndSpanWithError(nil, nil)
		sm.EndSpanWithError(nil, errors.New("test"))

		_, span := sm.StartDeliverySpan(ctx, 1, 1)
		sm.EndSpanWithError(span, errors.New("test"))

		sm.AddSpanEvent(ctx, "event", attribute.String("key", "value"))
		sm.AddSpanEvent(ctx, "")
	})
}

func TestNoopImplementations_PipelineShape(t *testing.T) {
	// Noop implementations must survive a full delivery cycle untouched.
	metrics := NoopMetrics{}
	spans := NoopSpanManager{}

	ctx := context.Background()
	ctx, deliverySpan := spans.StartDeliverySpan(ctx, 1, 25)

	for attempt := 1; attempt <= 3; attempt++ {
		attemptCtx, attemptSpan := spans.StartAttemptSpan(ctx, attempt)

		var err error
		if attempt < 3 {
			err = errors.New("transient failure")
		}
		metrics.RecordBatch(attemptCtx, 25, "retryable", 10*time.Millisecond)
		spans.EndSpanWithError(attemptSpan, err)
	}

	metrics.RecordBatch(ctx, 25, "success", 30*time.Millisecond)
	spans.EndSpanWithError(deliverySpan, nil)
}
