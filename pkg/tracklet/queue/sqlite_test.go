package queue_test

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tracklet/pkg/tracklet/queue"
)

func enqueueN(t *testing.T, s queue.Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, s.Enqueue(queue.Record{
			EventID: fmt.Sprintf("evt-%d", i),
			Data:    []byte(fmt.Sprintf(`{"n":%d}`, i)),
		}))
	}
}

func TestSQLiteStore_FIFO(t *testing.T) {
	store, err := queue.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer store.Close()

	enqueueN(t, store, 5)

	batch, err := store.PeekBatch(3)
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Len(t, batch.Records, 3)
	for i, rec := range batch.Records {
		assert.Equal(t, fmt.Sprintf("evt-%d", i+1), rec.EventID)
	}
}

func TestSQLiteStore_PeekIsIdempotentWhileLeased(t *testing.T) {
	store, err := queue.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer store.Close()

	enqueueN(t, store, 4)

	first, err := store.PeekBatch(2)
	require.NoError(t, err)
	// A second peek must not lease past the outstanding batch.
	second, err := store.PeekBatch(2)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.Len(t, second.Records, 2)
	assert.Equal(t, "evt-1", second.Records[0].EventID)
}

func TestSQLiteStore_AckRemovesAndIsIdempotent(t *testing.T) {
	store, err := queue.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer store.Close()

	enqueueN(t, store, 3)

	batch, err := store.PeekBatch(2)
	require.NoError(t, err)

	n, err := store.Ack(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	// Duplicate ack is a no-op, not an error.
	n, err = store.Ack(batch.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	size, _ = store.Size()
	assert.Equal(t, 1, size)
}

func TestSQLiteStore_RequeuePreservesOrder(t *testing.T) {
	store, err := queue.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer store.Close()

	enqueueN(t, store, 3)

	batch, err := store.PeekBatch(2)
	require.NoError(t, err)
	require.NoError(t, store.Requeue(batch.ID))

	// Requeue is idempotent.
	require.NoError(t, store.Requeue(batch.ID))

	next, err := store.PeekBatch(3)
	require.NoError(t, err)
	require.Len(t, next.Records, 3)
	assert.Equal(t, "evt-1", next.Records[0].EventID)
	assert.Equal(t, "evt-2", next.Records[1].EventID)
	assert.Equal(t, "evt-3", next.Records[2].EventID)
	// A fresh lease gets a new, larger batch sequence.
	assert.Greater(t, next.ID, batch.ID)
}

func TestSQLiteStore_OverflowDropsOldest(t *testing.T) {
	store, err := queue.NewSQLiteStore(":memory:", 10)
	require.NoError(t, err)
	defer store.Close()

	enqueueN(t, store, 11)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 10, size)

	dropped, err := store.Dropped()
	require.NoError(t, err)
	assert.Equal(t, int64(1), dropped)

	batch, err := store.PeekBatch(10)
	require.NoError(t, err)
	require.Len(t, batch.Records, 10)
	assert.Equal(t, "evt-2", batch.Records[0].EventID)
	assert.Equal(t, "evt-11", batch.Records[9].EventID)
}

func TestSQLiteStore_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	store1, err := queue.NewSQLiteStore(dbPath, 0)
	require.NoError(t, err)
	enqueueN(t, store1, 3)
	require.NoError(t, store1.Close())

	store2, err := queue.NewSQLiteStore(dbPath, 0)
	require.NoError(t, err)
	defer store2.Close()

	size, err := store2.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	batch, err := store2.PeekBatch(3)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", batch.Records[0].EventID)
}

func TestSQLiteStore_CrashLeaseReservedOnReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	store1, err := queue.NewSQLiteStore(dbPath, 0)
	require.NoError(t, err)
	enqueueN(t, store1, 2)
	leased, err := store1.PeekBatch(2)
	require.NoError(t, err)
	// Simulate a crash: close without ack or requeue.
	require.NoError(t, store1.Close())

	store2, err := queue.NewSQLiteStore(dbPath, 0)
	require.NoError(t, err)
	defer store2.Close()

	// The interrupted batch comes back under its original sequence so
	// the collector can dedup a replay it already recorded.
	batch, err := store2.PeekBatch(2)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, leased.ID, batch.ID)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "evt-1", batch.Records[0].EventID)

	// Settling it keeps the sequence monotonic for what follows.
	_, err = store2.Ack(batch.ID)
	require.NoError(t, err)
	enqueueN(t, store2, 1)
	next, err := store2.PeekBatch(2)
	require.NoError(t, err)
	assert.Greater(t, next.ID, batch.ID)
}

func TestSQLiteStore_EmptyPeek(t *testing.T) {
	store, err := queue.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer store.Close()

	batch, err := store.PeekBatch(5)
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestSQLiteStore_Bytes(t *testing.T) {
	store, err := queue.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Bytes()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.Enqueue(queue.Record{EventID: "e", Data: []byte("12345678")}))
	n, err = store.Bytes()
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
}

func TestSQLiteStore_CloseIdempotent(t *testing.T) {
	store, err := queue.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())

	err = store.Enqueue(queue.Record{EventID: "e", Data: []byte("{}")})
	assert.ErrorIs(t, err, queue.ErrStoreClosed)
}

func TestSQLiteStore_ConcurrentEnqueue(t *testing.T) {
	store, err := queue.NewSQLiteStore(":memory:", 0)
	require.NoError(t, err)
	defer store.Close()

	const numGoroutines = 20
	const perGoroutine = 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_ = store.Enqueue(queue.Record{
					EventID: fmt.Sprintf("g%d-e%d", g, i),
					Data:    []byte("{}"),
				})
			}
		}(g)
	}
	wg.Wait()

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, numGoroutines*perGoroutine, size)
}
