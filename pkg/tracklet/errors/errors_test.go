package errors_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/randalmurphal/tracklet/pkg/tracklet/errors"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return e.timeout }

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want terrors.Category
	}{
		{"nil fails safe", nil, terrors.CategoryPermanent},
		{"pre-categorized transient", terrors.Transient(stderrors.New("x"), "send"), terrors.CategoryTransient},
		{"pre-categorized permanent", terrors.Permanent(stderrors.New("x"), "encode"), terrors.CategoryPermanent},
		{"pre-categorized invalid", terrors.Invalid(stderrors.New("x"), "track"), terrors.CategoryInvalid},
		{"wrapped categorized", fmt.Errorf("outer: %w", terrors.Transient(stderrors.New("x"), "")), terrors.CategoryTransient},
		{"http 429", &terrors.HTTPError{StatusCode: 429}, terrors.CategoryTransient},
		{"http 500", &terrors.HTTPError{StatusCode: 500}, terrors.CategoryTransient},
		{"http 503", &terrors.HTTPError{StatusCode: 503}, terrors.CategoryTransient},
		{"http 400", &terrors.HTTPError{StatusCode: 400}, terrors.CategoryPermanent},
		{"http 401", &terrors.HTTPError{StatusCode: 401}, terrors.CategoryPermanent},
		{"http 413", &terrors.HTTPError{StatusCode: 413}, terrors.CategoryPermanent},
		{"validation", &terrors.ValidationError{Field: "name", Message: "empty"}, terrors.CategoryInvalid},
		{"timeout type", &terrors.TimeoutError{Operation: "send", Duration: "10s"}, terrors.CategoryTransient},
		{"net timeout", &fakeNetError{timeout: true}, terrors.CategoryTransient},
		{"net op error", &net.OpError{Op: "dial", Err: stderrors.New("refused")}, terrors.CategoryTransient},
		{"deadline exceeded", context.DeadlineExceeded, terrors.CategoryTransient},
		{"unknown fails safe", stderrors.New("mystery"), terrors.CategoryPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, terrors.Categorize(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, terrors.IsRetryable(&terrors.HTTPError{StatusCode: 502}))
	assert.False(t, terrors.IsRetryable(&terrors.HTTPError{StatusCode: 404}))
	assert.False(t, terrors.IsRetryable(&terrors.ValidationError{Field: "name"}))
}

func TestCategorizedError_Formatting(t *testing.T) {
	base := stderrors.New("connection reset")
	err := &terrors.CategorizedError{
		Err:      base,
		Category: terrors.CategoryTransient,
		Attempts: 2,
		Context:  "deliver batch",
	}

	assert.Contains(t, err.Error(), "deliver batch")
	assert.Contains(t, err.Error(), "transient")
	assert.Contains(t, err.Error(), "attempts: 2")
	assert.ErrorIs(t, err, base)
}

func TestValidationError_Message(t *testing.T) {
	err := &terrors.ValidationError{Field: "name", Message: "must not be empty"}
	assert.Contains(t, err.Error(), "invalid event")
	assert.Contains(t, err.Error(), "name")
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "transient", terrors.CategoryTransient.String())
	assert.Equal(t, "permanent", terrors.CategoryPermanent.String())
	assert.Equal(t, "invalid", terrors.CategoryInvalid.String())
}

func TestRetryConfig_BackoffGrowsAndCaps(t *testing.T) {
	cfg := terrors.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     400 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         0, // deterministic
	}

	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, cfg.Backoff(3))
	// Capped from here on.
	assert.Equal(t, 400*time.Millisecond, cfg.Backoff(4))
	assert.Equal(t, 400*time.Millisecond, cfg.Backoff(10))

	// Attempts below 1 clamp to the first retry.
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(0))
}

func TestRetryConfig_JitterStaysInBounds(t *testing.T) {
	cfg := terrors.RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
	}

	for i := 0; i < 100; i++ {
		d := cfg.Backoff(1)
		require.GreaterOrEqual(t, d, 900*time.Millisecond)
		require.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestRetryConfig_Exhausted(t *testing.T) {
	cfg := terrors.RetryConfig{MaxAttempts: 4}

	assert.False(t, cfg.Exhausted(1))
	assert.False(t, cfg.Exhausted(3))
	assert.True(t, cfg.Exhausted(4))
	assert.True(t, cfg.Exhausted(5))

	assert.True(t, terrors.NoRetry.Exhausted(1))
}
