package errors

import (
	"math/rand/v2"
	"time"
)

// RetryConfig configures backoff between delivery attempts.
//
// The batch scheduler owns the retry loop (one attempt per DeliveryClient
// call); this struct only owns the arithmetic, so the loop, the attempt
// counter, and the single-flight invariant live in one place.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Exceeding it converts a transient failure into a permanent one.
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64
}

// DefaultRetry is the standard retry configuration.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// Backoff returns the delay before the given retry attempt.
// Attempt 1 is the first retry (after the initial attempt failed).
// The result grows exponentially, is capped at MaxBackoff, and has
// +/- Jitter applied.
func (cfg RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= cfg.BackoffFactor
		if backoff >= float64(cfg.MaxBackoff) {
			backoff = float64(cfg.MaxBackoff)
			break
		}
	}
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	return applyJitter(time.Duration(backoff), cfg.Jitter)
}

// Exhausted reports whether the given attempt count has used up the budget.
func (cfg RetryConfig) Exhausted(attempts int) bool {
	return attempts >= cfg.MaxAttempts
}

// applyJitter returns the backoff duration with jitter applied.
func applyJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}

	// Calculate jitter: base +/- (base * jitter * random)
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + jitterAmount)
}
