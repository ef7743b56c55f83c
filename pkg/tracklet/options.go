package tracklet

import (
	"log/slog"
	"net/http"

	terrors "github.com/randalmurphal/tracklet/pkg/tracklet/errors"
	"github.com/randalmurphal/tracklet/pkg/tracklet/observability"
	"github.com/randalmurphal/tracklet/pkg/tracklet/queue"
)

// ErrorObserver is notified when a batch fails terminally: the batch
// sequence number, the number of events dropped with it, and the final
// error. It is called from the scheduler goroutine and must not block.
type ErrorObserver func(batchID int64, events int, err error)

// engineConfig holds the injectable collaborators.
type engineConfig struct {
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager
	store      queue.Store
	httpClient *http.Client
	onTerminal ErrorObserver
	backoff    *terrors.RetryConfig
}

// Option configures engine construction.
type Option func(*engineConfig)

// WithLogger sets the structured logger. Nil (the default) disables
// logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithMetricsRecorder sets the metrics recorder.
// Default: observability.NoopMetrics{}.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(c *engineConfig) {
		c.metrics = m
	}
}

// WithSpanManager sets the trace span manager.
// Default: observability.NoopSpanManager{}.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *engineConfig) {
		c.spans = s
	}
}

// WithStore injects a queue store, overriding the one built from
// Options.QueuePath. The engine takes ownership and closes it on Stop.
func WithStore(s queue.Store) Option {
	return func(c *engineConfig) {
		c.store = s
	}
}

// WithHTTPClient overrides the delivery transport (tests, custom
// proxies).
func WithHTTPClient(client *http.Client) Option {
	return func(c *engineConfig) {
		c.httpClient = client
	}
}

// WithErrorObserver registers a callback for terminal batch failures.
func WithErrorObserver(fn ErrorObserver) Option {
	return func(c *engineConfig) {
		c.onTerminal = fn
	}
}

// WithBackoff overrides the backoff curve between retry attempts.
// MaxAttempts is still derived from Options.MaxRetries.
func WithBackoff(cfg terrors.RetryConfig) Option {
	return func(c *engineConfig) {
		c.backoff = &cfg
	}
}
