// Package queue provides the durable, bounded, FIFO event queue that
// decouples track calls from delivery.
//
// Two implementations are provided:
//   - SQLiteStore: disk-backed, survives process restarts
//   - MemoryStore: ephemeral, for tests and short-lived embedding
//
// A batch is always a contiguous prefix of the queue, identified by a
// monotonic batch sequence number so the collector can dedup replays.
// Events leave the queue only on Ack or on drop-oldest overflow.
package queue

import (
	"errors"
	"time"
)

// Common errors returned by queue stores.
var (
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("queue store is closed")
)

// Record is one queued event awaiting delivery.
type Record struct {
	// Seq is the enqueue sequence number (FIFO position).
	Seq int64

	// EventID is the event's unique identifier.
	EventID string

	// Data is the serialized event.
	Data []byte

	// EnqueuedAt is when the record entered the queue.
	EnqueuedAt time.Time
}

// Batch is a contiguous prefix of the queue leased for one delivery
// attempt. The ID is monotonic across restarts.
type Batch struct {
	ID      int64
	Records []Record
}

// Events returns the serialized events in enqueue order.
func (b *Batch) Events() [][]byte {
	out := make([][]byte, len(b.Records))
	for i, rec := range b.Records {
		out[i] = rec.Data
	}
	return out
}

// Bytes returns the total serialized size of the batch.
func (b *Batch) Bytes() int64 {
	var n int64
	for _, rec := range b.Records {
		n += int64(len(rec.Data))
	}
	return n
}

// Store is the durable queue contract.
//
// Ack and Requeue are idempotent: repeating either for an already
// settled batch is a no-op, which tolerates at-least-once
// acknowledgment paths.
type Store interface {
	// Enqueue appends an event. At capacity the oldest record is
	// dropped and the dropped counter incremented.
	Enqueue(rec Record) error

	// PeekBatch leases up to max records from the head of the queue.
	// While a lease is outstanding, PeekBatch returns the same batch
	// again rather than leasing past it. Returns nil when empty.
	PeekBatch(max int) (*Batch, error)

	// Ack removes a delivered batch. Returns the number of records
	// removed (zero for an already-acked batch).
	Ack(batchID int64) (int, error)

	// Requeue returns a leased batch to the head of the queue,
	// preserving order, for a later retry.
	Requeue(batchID int64) error

	// Size returns the number of queued records, leased included.
	Size() (int, error)

	// Bytes returns the total serialized size of queued records.
	Bytes() (int64, error)

	// Dropped returns the lifetime count of overflow-dropped records.
	Dropped() (int64, error)

	// Close releases the store. Queued records survive in durable
	// implementations.
	Close() error
}
