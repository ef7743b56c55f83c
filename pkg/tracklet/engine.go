package tracklet

import (
	"context"
	"sync"
	"time"

	"github.com/randalmurphal/tracklet/pkg/tracklet/codec"
	"github.com/randalmurphal/tracklet/pkg/tracklet/config"
	"github.com/randalmurphal/tracklet/pkg/tracklet/delivery"
	terrors "github.com/randalmurphal/tracklet/pkg/tracklet/errors"
	"github.com/randalmurphal/tracklet/pkg/tracklet/event"
	"github.com/randalmurphal/tracklet/pkg/tracklet/monitor"
	"github.com/randalmurphal/tracklet/pkg/tracklet/observability"
	"github.com/randalmurphal/tracklet/pkg/tracklet/queue"
	"github.com/randalmurphal/tracklet/pkg/tracklet/session"
)

// flushWaiter tracks one Flush call until the queue drains.
type flushWaiter struct {
	done chan struct{}
	err  error
}

// Engine is the analytics facade. It composes validation, session
// state, enrichment, the durable queue, the batch scheduler, the
// codec, and the delivery client behind a small concurrent-safe API.
//
// Construct with New; the engine owns its collaborators and releases
// them on Stop.
type Engine struct {
	opts     config.Options
	cfg      engineConfig
	sessions *session.Manager
	store    queue.Store
	codec    *codec.Codec
	client   *delivery.Client
	mon      *monitor.Monitor
	retry    terrors.RetryConfig

	mu          sync.Mutex
	stopped     bool
	waiters     []*flushWaiter
	lastDropped int64

	kick      chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates and starts an engine from resolved options.
func New(opts config.Options, engineOpts ...Option) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cfg := engineConfig{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range engineOpts {
		opt(&cfg)
	}

	store := cfg.store
	if store == nil {
		var err error
		if opts.QueuePath == ":memory:" {
			store = queue.NewMemoryStore(opts.MaxQueueSize)
		} else {
			store, err = queue.NewSQLiteStore(opts.QueuePath, opts.MaxQueueSize)
			if err != nil {
				return nil, err
			}
		}
	}

	cdc, err := codec.New(
		codec.Compression(opts.Compression),
		codec.Encryption(opts.Encryption),
		opts.APIKey,
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	client := delivery.NewClient(delivery.Config{
		Endpoint:    opts.Endpoint,
		APIKey:      opts.APIKey,
		Environment: string(opts.Environment),
		Timeout:     opts.Timeout,
		Compression: codec.Compression(opts.Compression),
		Encryption:  codec.Encryption(opts.Encryption),
		HTTPClient:  cfg.httpClient,
	})

	e := &Engine{
		opts:     opts,
		cfg:      cfg,
		sessions: session.NewManager(),
		store:    store,
		codec:    cdc,
		client:   client,
		mon:      monitor.New(),
		retry:    resolveRetry(cfg, opts),
		kick:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	if opts.AutoStartSession {
		id := e.sessions.Start()
		observability.LogSession(cfg.logger, "started", id)
	}

	observability.LogEngineStart(cfg.logger, string(opts.Environment), opts.Endpoint)
	go e.run()
	return e, nil
}

// resolveRetry builds the scheduler's retry configuration.
// MaxAttempts counts the initial attempt; exceeding MaxRetries retries
// converts the failure to terminal.
func resolveRetry(cfg engineConfig, opts config.Options) terrors.RetryConfig {
	retry := terrors.DefaultRetry
	if cfg.backoff != nil {
		retry = *cfg.backoff
	}
	retry.MaxAttempts = opts.MaxRetries + 1
	return retry
}

// NewFromConfig resolves a raw Config and constructs an engine.
func NewFromConfig(c config.Config, engineOpts ...Option) (*Engine, error) {
	opts, err := config.Resolve(c)
	if err != nil {
		return nil, err
	}
	return New(opts, engineOpts...)
}

// Track validates, enriches, and durably queues one event. A nil
// return means the event is on disk, not that it was delivered.
// Validation failures surface immediately and never touch the queue.
func (e *Engine) Track(name string, props *event.Properties) error {
	evt := event.New(name, props)
	if err := event.Validate(evt); err != nil {
		e.mon.RecordInvalid()
		e.cfg.metrics.RecordEvent(context.Background(), name, false)
		observability.LogEventInvalid(e.cfg.logger, name, err)
		return err
	}

	snap := e.sessions.Snapshot()
	evt = event.Enrich(evt, snap.SessionID, snap.UserID)

	data, err := evt.Marshal()
	if err != nil {
		return terrors.Invalid(err, "encode event")
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	err = e.store.Enqueue(queue.Record{
		EventID:    evt.ID,
		Data:       data,
		EnqueuedAt: time.Now().UTC(),
	})
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.cfg.metrics.RecordEvent(context.Background(), name, true)
	size := e.refreshGauges()
	observability.LogEventQueued(e.cfg.logger, evt.ID, name, size)

	if size >= e.opts.BatchSize {
		e.wake()
	}
	return nil
}

// Identify sets the user identity. Valid in any session state.
func (e *Engine) Identify(userID string, props *event.Properties) error {
	if e.isStopped() {
		return ErrStopped
	}
	e.sessions.Identify(userID, props)
	return nil
}

// SetUserProperties merges properties into the active session,
// last-write-wins per key.
func (e *Engine) SetUserProperties(props *event.Properties) error {
	if e.isStopped() {
		return ErrStopped
	}
	e.sessions.SetUserProperties(props)
	return nil
}

// StartSession begins a session, replacing any active one.
// Returns the new session ID.
func (e *Engine) StartSession() (string, error) {
	if e.isStopped() {
		return "", ErrStopped
	}
	id := e.sessions.Start()
	observability.LogSession(e.cfg.logger, "started", id)
	return id, nil
}

// EndSession finishes the active session.
func (e *Engine) EndSession() error {
	if e.isStopped() {
		return ErrStopped
	}
	if id := e.sessions.End(); id != "" {
		observability.LogSession(e.cfg.logger, "ended", id)
	}
	return nil
}

// SessionDuration returns the elapsed time of the active session,
// zero when none is active.
func (e *Engine) SessionDuration() time.Duration {
	return e.sessions.Duration()
}

// Flush triggers immediate delivery and blocks the caller (only) until
// the queue drains or every queued batch has failed terminally. The
// wait has no internal deadline; bound it with the context. If a batch
// failed terminally while waiting, the final error is returned after
// the drain.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	size, err := e.store.Size()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if size == 0 {
		e.mu.Unlock()
		return nil
	}
	w := &flushWaiter{done: make(chan struct{})}
	e.waiters = append(e.waiters, w)
	e.mu.Unlock()

	e.wake()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return w.err
	}
}

// Metrics returns a snapshot of the rolling performance counters.
// It never blocks on pipeline activity.
func (e *Engine) Metrics() monitor.Snapshot {
	e.refreshGauges()
	return e.mon.Snapshot()
}

// QueueSize returns the current number of queued events.
func (e *Engine) QueueSize() int {
	size, _ := e.store.Size()
	return size
}

// Stop halts the scheduler and releases the queue store. Any leased
// batch is returned to the durable queue first, so a clean stop loses
// no queued event. Stop is idempotent; if a call's context expires
// before the scheduler exits, the store stays open and a later call
// finishes the close.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	first := !e.stopped
	e.stopped = true
	e.mu.Unlock()

	if first {
		close(e.stopCh)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var err error
	e.closeOnce.Do(func() {
		size, _ := e.store.Size()
		observability.LogEngineStop(e.cfg.logger, size)
		e.releaseWaiters(ErrStopped)
		err = e.store.Close()
	})
	return err
}

// isStopped reports whether Stop has begun.
func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// wake nudges the scheduler; concurrent wakes coalesce.
func (e *Engine) wake() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// refreshGauges pushes queue state into the monitor and reports the
// current size. Overflow drops observed since the last refresh are
// logged and counted.
func (e *Engine) refreshGauges() int {
	size, err := e.store.Size()
	if err != nil {
		return 0
	}
	bytes, _ := e.store.Bytes()
	dropped, _ := e.store.Dropped()
	e.mon.SetQueueUsage(size, bytes, 0)
	e.mon.SetDropped(dropped)

	e.mu.Lock()
	delta := dropped - e.lastDropped
	e.lastDropped = dropped
	e.mu.Unlock()
	if delta > 0 {
		e.cfg.metrics.RecordDrop(context.Background(), delta)
		observability.LogQueueOverflow(e.cfg.logger, dropped)
	}
	return size
}

// hasWaiters reports whether a Flush is pending.
func (e *Engine) hasWaiters() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.waiters) > 0
}

// failWaiters records a terminal error on every pending Flush without
// releasing them; they still wait for the drain.
func (e *Engine) failWaiters(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.waiters {
		w.err = err
	}
}

// releaseWaitersIfEmpty completes every pending Flush, but only when
// the queue is still empty under the same lock Track enqueues and
// Flush registers under, so a waiter registered behind a stale empty
// observation stays pending. Reports whether the release happened.
func (e *Engine) releaseWaitersIfEmpty() bool {
	e.mu.Lock()
	if size, err := e.store.Size(); err == nil && size > 0 {
		e.mu.Unlock()
		return false
	}
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	for _, w := range waiters {
		close(w.done)
	}
	return true
}

// releaseWaiters completes every pending Flush.
func (e *Engine) releaseWaiters(err error) {
	e.mu.Lock()
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	for _, w := range waiters {
		if w.err == nil {
			w.err = err
		}
		close(w.done)
	}
}
