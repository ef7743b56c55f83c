package tracklet

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/tracklet/pkg/tracklet/delivery"
	terrors "github.com/randalmurphal/tracklet/pkg/tracklet/errors"
	"github.com/randalmurphal/tracklet/pkg/tracklet/observability"
	"github.com/randalmurphal/tracklet/pkg/tracklet/queue"
)

// run is the batch scheduler: a single goroutine that owns delivery,
// which makes single-flight structural rather than something to lock
// for. It wakes on the size trigger, the flush interval, or an
// explicit Flush, settles as many batches as the triggers warrant,
// and goes back to sleep.
func (e *Engine) run() {
	defer close(e.done)

	timer := time.NewTimer(e.opts.FlushInterval)
	defer timer.Stop()

	for {
		timerFired := false
		select {
		case <-e.stopCh:
			return
		case <-e.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			timerFired = true
		}

		if !e.settle(timerFired) {
			return
		}
		timer.Reset(e.opts.FlushInterval)
	}
}

// settle delivers batches until the pending triggers are satisfied.
// The interval trigger flushes one batch even below the size
// threshold; an explicit Flush drains everything. After each success
// the thresholds are re-evaluated against the remaining queue.
// Returns false when the engine is stopping.
func (e *Engine) settle(force bool) bool {
	for {
		size, err := e.store.Size()
		if err != nil {
			return true // store closed or broken; the next wake retries
		}
		if size == 0 {
			if e.releaseWaitersIfEmpty() {
				return true
			}
			// An enqueue landed behind the size read; go around.
			continue
		}
		if !force && size < e.opts.BatchSize && !e.hasWaiters() {
			return true
		}
		force = false

		if !e.deliverBatch() {
			return false
		}
	}
}

// deliverBatch settles exactly one batch: encode, then attempt until
// success, terminal failure, or retry exhaustion. Returns false when
// interrupted by Stop (the lease stays durable and returns to the
// head on the next open).
func (e *Engine) deliverBatch() bool {
	batch, err := e.store.PeekBatch(e.opts.BatchSize)
	if err != nil || batch == nil {
		return err == nil
	}

	ctx, span := e.cfg.spans.StartDeliverySpan(context.Background(), batch.ID, len(batch.Records))
	done := observability.TimedOperation()

	e.mon.SetQueueUsage(e.QueueSize(), mustBytes(e.store), batch.Bytes())
	defer func() {
		e.mon.SetQueueUsage(e.QueueSize(), mustBytes(e.store), 0)
	}()

	encStart := time.Now()
	encoded, err := e.codec.Encode(batchPayload(batch))
	if err != nil {
		// Unencodable means undeliverable; no retry can help.
		e.cfg.spans.EndSpanWithError(span, err)
		e.discardBatch(batch, err, done())
		return true
	}
	e.mon.RecordEncode(encoded.RawBytes, encoded.WireBytes, time.Since(encStart))
	e.cfg.metrics.RecordPayload(ctx, int64(encoded.RawBytes), int64(encoded.WireBytes))

	for attempt := 1; ; attempt++ {
		attemptCtx, attemptSpan := e.cfg.spans.StartAttemptSpan(ctx, attempt)
		sendStart := time.Now()
		outcome := e.client.Send(attemptCtx, batch.ID, encoded.Data)
		e.mon.RecordSendCPU(time.Since(sendStart))
		e.cfg.spans.EndSpanWithError(attemptSpan, outcome.Err)

		switch outcome.Class {
		case delivery.Success:
			e.mon.RecordAttempt(false)
			e.ackBatch(ctx, batch, done())
			e.cfg.spans.EndSpanWithError(span, nil)
			return true

		case delivery.Terminal:
			e.mon.RecordAttempt(true)
			e.cfg.spans.EndSpanWithError(span, outcome.Err)
			e.discardBatch(batch, outcome.Err, done())
			return true

		case delivery.Retryable:
			if e.retry.Exhausted(attempt) {
				// Exceeding the retry budget converts the
				// failure to terminal for this batch.
				final := &terrors.CategorizedError{
					Err:      outcome.Err,
					Category: terrors.CategoryPermanent,
					Attempts: attempt,
					Context:  "max retries exceeded",
				}
				e.mon.RecordAttempt(true)
				e.cfg.spans.EndSpanWithError(span, final)
				e.discardBatch(batch, final, done())
				return true
			}

			e.mon.RecordAttempt(false)
			backoff := e.retry.Backoff(attempt)
			observability.LogBatchRetry(e.cfg.logger, batch.ID, attempt, backoff, outcome.Err)

			select {
			case <-e.stopCh:
				// The lease is durable; a restart resends
				// this exact batch.
				_ = e.store.Requeue(batch.ID)
				e.cfg.spans.EndSpanWithError(span, outcome.Err)
				return false
			case <-time.After(backoff):
			}
		}
	}
}

// ackBatch removes a delivered batch and records its metrics.
func (e *Engine) ackBatch(ctx context.Context, batch *queue.Batch, durationMs float64) {
	n, err := e.store.Ack(batch.ID)
	if err != nil {
		return
	}
	latency := time.Since(batch.Records[0].EnqueuedAt)
	e.mon.RecordAck(n, latency)
	e.cfg.metrics.RecordBatch(ctx, n, "success", time.Duration(durationMs)*time.Millisecond)
	observability.LogBatchDelivered(e.cfg.logger, batch.ID, n, durationMs)
	e.refreshGauges()
}

// discardBatch drops a terminally failed batch, notifies observers,
// and surfaces the failure to pending Flush callers.
func (e *Engine) discardBatch(batch *queue.Batch, cause error, durationMs float64) {
	n, _ := e.store.Ack(batch.ID) // removal only; nothing was delivered
	if n == 0 {
		n = len(batch.Records)
	}

	e.mon.RecordTerminal()
	e.cfg.metrics.RecordBatch(context.Background(), n, "terminal", time.Duration(durationMs)*time.Millisecond)
	observability.LogBatchTerminal(e.cfg.logger, batch.ID, n, cause)
	e.failWaiters(fmt.Errorf("batch %d dropped: %w", batch.ID, cause))
	if e.cfg.onTerminal != nil {
		e.cfg.onTerminal(batch.ID, n, cause)
	}
	e.refreshGauges()
}

// batchPayload assembles the wire payload: a JSON array of the queued
// events exactly as they were serialized at enqueue time, preserving
// FIFO order.
func batchPayload(batch *queue.Batch) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, rec := range batch.Records {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(rec.Data)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func mustBytes(s queue.Store) int64 {
	n, _ := s.Bytes()
	return n
}
