// Package observability provides production-grade observability for
// the tracking engine: structured logging, metrics, and tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// LogEngineStart logs engine startup.
func LogEngineStart(logger *slog.Logger, environment, endpoint string) {
	if logger == nil {
		return
	}
	logger.Info("engine starting",
		slog.String("environment", environment),
		slog.String("endpoint", endpoint),
	)
}

// LogEngineStop logs a clean engine shutdown.
func LogEngineStop(logger *slog.Logger, queued int) {
	if logger == nil {
		return
	}
	logger.Info("engine stopped",
		slog.Int("events_queued", queued),
	)
}

// LogEventQueued logs a durably queued event.
func LogEventQueued(logger *slog.Logger, eventID, name string, queueDepth int) {
	if logger == nil {
		return
	}
	logger.Debug("event queued",
		slog.String("event_id", eventID),
		slog.String("event_name", name),
		slog.Int("queue_depth", queueDepth),
	)
}

// LogEventInvalid logs a rejected track call.
func LogEventInvalid(logger *slog.Logger, name string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("event rejected",
		slog.String("event_name", name),
		slog.String("error", err.Error()),
	)
}

// LogBatchDelivered logs a successfully delivered batch.
func LogBatchDelivered(logger *slog.Logger, batchID int64, events int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("batch delivered",
		slog.Int64("batch_id", batchID),
		slog.Int("events", events),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogBatchRetry logs a transient delivery failure and the scheduled backoff.
func LogBatchRetry(logger *slog.Logger, batchID int64, attempt int, backoff time.Duration, err error) {
	if logger == nil {
		return
	}
	logger.Warn("batch delivery failed, will retry",
		slog.Int64("batch_id", batchID),
		slog.Int("attempt", attempt),
		slog.Duration("backoff", backoff),
		slog.String("error", err.Error()),
	)
}

// LogBatchTerminal logs a batch the collector will never accept.
func LogBatchTerminal(logger *slog.Logger, batchID int64, events int, err error) {
	if logger == nil {
		return
	}
	logger.Error("batch dropped after terminal failure",
		slog.Int64("batch_id", batchID),
		slog.Int("events", events),
		slog.String("error", err.Error()),
	)
}

// LogQueueOverflow logs data shedding under backpressure.
func LogQueueOverflow(logger *slog.Logger, dropped int64) {
	if logger == nil {
		return
	}
	logger.Warn("queue overflow, oldest event dropped",
		slog.Int64("dropped_total", dropped),
	)
}

// LogSession logs a session lifecycle transition.
func LogSession(logger *slog.Logger, op, sessionID string) {
	if logger == nil {
		return
	}
	logger.Debug("session "+op,
		slog.String("session_id", sessionID),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
