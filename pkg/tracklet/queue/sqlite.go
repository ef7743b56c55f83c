package queue

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists the queue to SQLite. Records survive process
// restarts; an in-flight lease left over from a crash is re-served as
// the same batch on the next peek, so delivery stays at-least-once and
// the collector can dedup the replay on its batch sequence.
type SQLiteStore struct {
	db      *sql.DB
	maxSize int
	mu      sync.Mutex
	closed  bool
}

// NewSQLiteStore opens (or creates) a queue database at path.
// Use ":memory:" for testing. maxSize bounds the queue; zero or
// negative means unbounded.
func NewSQLiteStore(path string, maxSize int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time; also keeps ":memory:" on a single
	// connection, where each pooled connection is a separate database.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			enqueued_at TEXT NOT NULL,
			batch_id INTEGER,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create events table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS queue_meta (
			key TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create meta table: %w", err)
	}

	if _, err := db.Exec(`
		INSERT OR IGNORE INTO queue_meta (key, value) VALUES ('dropped', 0), ('batch_seq', 0)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed meta: %w", err)
	}

	return &SQLiteStore{db: db, maxSize: maxSize}, nil
}

// Enqueue implements Store.
func (s *SQLiteStore) Enqueue(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback()

	if s.maxSize > 0 {
		var size int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&size); err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		// Bounded memory beats completeness: shed the oldest record.
		for ; size >= s.maxSize; size-- {
			if _, err := tx.Exec(`
				DELETE FROM events WHERE seq = (SELECT MIN(seq) FROM events)
			`); err != nil {
				return fmt.Errorf("drop oldest: %w", err)
			}
			if _, err := tx.Exec(`
				UPDATE queue_meta SET value = value + 1 WHERE key = 'dropped'
			`); err != nil {
				return fmt.Errorf("count drop: %w", err)
			}
		}
	}

	enqueuedAt := rec.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}
	if _, err := tx.Exec(`
		INSERT INTO events (event_id, enqueued_at, data) VALUES (?, ?, ?)
	`, rec.EventID, enqueuedAt.UTC().Format(time.RFC3339Nano), rec.Data); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue: %w", err)
	}
	return nil
}

// PeekBatch implements Store.
func (s *SQLiteStore) PeekBatch(max int) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if max <= 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin peek: %w", err)
	}
	defer tx.Rollback()

	// An outstanding lease, including one left behind by a crash, is
	// re-served as-is so a retry sends the exact batch and sequence
	// the collector may have already seen.
	var leased sql.NullInt64
	err = tx.QueryRow(`SELECT batch_id FROM events WHERE batch_id IS NOT NULL LIMIT 1`).Scan(&leased)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("find lease: %w", err)
	}

	var batchID int64
	if leased.Valid {
		batchID = leased.Int64
	} else {
		if err := tx.QueryRow(`SELECT value + 1 FROM queue_meta WHERE key = 'batch_seq'`).Scan(&batchID); err != nil {
			return nil, fmt.Errorf("next batch id: %w", err)
		}
		res, err := tx.Exec(`
			UPDATE events SET batch_id = ?
			WHERE seq IN (SELECT seq FROM events WHERE batch_id IS NULL ORDER BY seq LIMIT ?)
		`, batchID, max)
		if err != nil {
			return nil, fmt.Errorf("lease batch: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("lease batch: %w", err)
		}
		if n == 0 {
			return nil, tx.Commit()
		}
		if _, err := tx.Exec(`UPDATE queue_meta SET value = ? WHERE key = 'batch_seq'`, batchID); err != nil {
			return nil, fmt.Errorf("advance batch seq: %w", err)
		}
	}

	rows, err := tx.Query(`
		SELECT seq, event_id, enqueued_at, data FROM events
		WHERE batch_id = ? ORDER BY seq
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	defer rows.Close()

	batch := &Batch{ID: batchID}
	for rows.Next() {
		var rec Record
		var ts string
		if err := rows.Scan(&rec.Seq, &rec.EventID, &ts, &rec.Data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, ts)
		batch.Records = append(batch.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit peek: %w", err)
	}
	if len(batch.Records) == 0 {
		return nil, nil
	}
	return batch, nil
}

// Ack implements Store. Deleting the rows is the compaction step; the
// append-only log never holds acknowledged events.
func (s *SQLiteStore) Ack(batchID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.Exec(`DELETE FROM events WHERE batch_id = ?`, batchID)
	if err != nil {
		return 0, fmt.Errorf("ack batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ack batch: %w", err)
	}
	return int(n), nil
}

// Requeue implements Store.
func (s *SQLiteStore) Requeue(batchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`UPDATE events SET batch_id = NULL WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("requeue batch: %w", err)
	}
	return nil
}

// Size implements Store.
func (s *SQLiteStore) Size() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var size int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&size); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return size, nil
}

// Bytes implements Store.
func (s *SQLiteStore) Bytes() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(LENGTH(data)) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sum event bytes: %w", err)
	}
	return n.Int64, nil
}

// Dropped implements Store.
func (s *SQLiteStore) Dropped() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var dropped int64
	if err := s.db.QueryRow(`SELECT value FROM queue_meta WHERE key = 'dropped'`).Scan(&dropped); err != nil {
		return 0, fmt.Errorf("read dropped count: %w", err)
	}
	return dropped, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
