package queue

import (
	"sync"
	"time"
)

// MemoryStore is an in-memory queue for testing and ephemeral
// embedding. It implements the full Store contract, overflow policy
// included, but nothing survives the process.
type MemoryStore struct {
	mu       sync.Mutex
	records  []Record
	leased   int   // records[:leased] belong to the outstanding batch
	batchID  int64 // current lease, 0 when none
	batchSeq int64
	dropped  int64
	maxSize  int
	closed   bool
}

// NewMemoryStore creates an empty in-memory queue.
// maxSize bounds the queue; zero or negative means unbounded.
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{maxSize: maxSize}
}

// Enqueue implements Store.
func (s *MemoryStore) Enqueue(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if s.maxSize > 0 {
		for len(s.records) >= s.maxSize {
			s.records = s.records[1:]
			s.dropped++
			if s.leased > 0 {
				s.leased--
			}
		}
	}

	if rec.EnqueuedAt.IsZero() {
		rec.EnqueuedAt = time.Now().UTC()
	}
	s.batchSeq++ // reuse the counter as an enqueue sequence source
	if rec.Seq == 0 {
		rec.Seq = s.batchSeq
	}
	s.records = append(s.records, rec)
	return nil
}

// PeekBatch implements Store.
func (s *MemoryStore) PeekBatch(max int) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if max <= 0 {
		return nil, nil
	}

	// A lease fully consumed by overflow drops is abandoned.
	if s.batchID != 0 && s.leased == 0 {
		s.batchID = 0
	}

	if s.batchID == 0 {
		if len(s.records) == 0 {
			return nil, nil
		}
		n := max
		if n > len(s.records) {
			n = len(s.records)
		}
		s.batchSeq++
		s.batchID = s.batchSeq
		s.leased = n
	}

	if s.leased == 0 {
		return nil, nil
	}
	batch := &Batch{ID: s.batchID, Records: make([]Record, s.leased)}
	copy(batch.Records, s.records[:s.leased])
	return batch, nil
}

// Ack implements Store.
func (s *MemoryStore) Ack(batchID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	if batchID != s.batchID || s.batchID == 0 {
		return 0, nil // already settled, idempotent
	}

	n := s.leased
	s.records = s.records[n:]
	s.leased = 0
	s.batchID = 0
	return n, nil
}

// Requeue implements Store.
func (s *MemoryStore) Requeue(batchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if batchID != s.batchID {
		return nil // already settled, idempotent
	}

	// Records never left the head; dropping the lease restores order.
	s.leased = 0
	s.batchID = 0
	return nil
}

// Size implements Store.
func (s *MemoryStore) Size() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	return len(s.records), nil
}

// Bytes implements Store.
func (s *MemoryStore) Bytes() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	var n int64
	for _, rec := range s.records {
		n += int64(len(rec.Data))
	}
	return n, nil
}

// Dropped implements Store.
func (s *MemoryStore) Dropped() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	return s.dropped, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
