package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock lets tests march the sliding window forward by hand.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor() (*Monitor, *fixedClock) {
	clock := &fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := New()
	m.now = clock.now
	return m, clock
}

func TestMonitor_LatencyEMA(t *testing.T) {
	m, _ := newTestMonitor()

	m.RecordAck(1, 100*time.Millisecond)
	// First sample seeds the average directly.
	assert.Equal(t, 100*time.Millisecond, m.Snapshot().EventLatency)

	m.RecordAck(1, 200*time.Millisecond)
	// 0.2*200 + 0.8*100 = 120
	assert.InDelta(t, float64(120*time.Millisecond), float64(m.Snapshot().EventLatency), float64(time.Millisecond))
}

func TestMonitor_EventsPerSecond(t *testing.T) {
	m, clock := newTestMonitor()

	m.RecordAck(30, time.Millisecond)
	m.RecordAck(30, time.Millisecond)

	snap := m.Snapshot()
	// 60 events over a 60s window.
	assert.InDelta(t, 1.0, snap.EventsPerSecond, 0.001)
	assert.Equal(t, int64(60), snap.DeliveredCount)

	// Samples age out of the window; lifetime counters do not.
	clock.advance(2 * time.Minute)
	snap = m.Snapshot()
	assert.Zero(t, snap.EventsPerSecond)
	assert.Equal(t, int64(60), snap.DeliveredCount)
}

func TestMonitor_ErrorRate(t *testing.T) {
	m, _ := newTestMonitor()
	assert.Zero(t, m.Snapshot().ErrorRate)

	m.RecordAttempt(false)
	m.RecordAttempt(false)
	m.RecordAttempt(false)
	m.RecordAttempt(true)

	assert.InDelta(t, 0.25, m.Snapshot().ErrorRate, 0.001)
}

func TestMonitor_NetworkEfficiency(t *testing.T) {
	m, _ := newTestMonitor()
	assert.Zero(t, m.Snapshot().NetworkEfficiency)

	m.RecordEncode(1000, 250, time.Millisecond)
	assert.InDelta(t, 0.25, m.Snapshot().NetworkEfficiency, 0.001)

	m.RecordEncode(1000, 750, time.Millisecond)
	assert.InDelta(t, 0.5, m.Snapshot().NetworkEfficiency, 0.001)
}

func TestMonitor_BatteryImpact(t *testing.T) {
	m, clock := newTestMonitor()

	m.RecordEncode(100, 100, 3*time.Second)
	m.RecordSendCPU(3 * time.Second)

	// 6 CPU-seconds over a 60s window.
	assert.InDelta(t, 0.1, m.Snapshot().BatteryImpact, 0.001)

	clock.advance(2 * time.Minute)
	assert.Zero(t, m.Snapshot().BatteryImpact)
}

func TestMonitor_MemoryUsageAndGauges(t *testing.T) {
	m, _ := newTestMonitor()

	m.SetQueueUsage(42, 1024, 512)
	m.SetDropped(7)
	m.RecordInvalid()
	m.RecordInvalid()
	m.RecordTerminal()

	snap := m.Snapshot()
	assert.Equal(t, 42, snap.QueueDepth)
	assert.Equal(t, int64(1536), snap.MemoryUsage)
	assert.Equal(t, int64(7), snap.DroppedCount)
	assert.Equal(t, int64(2), snap.InvalidCount)
	assert.Equal(t, int64(1), snap.FailedBatches)
}

func TestMonitor_ZeroValueSnapshot(t *testing.T) {
	m := New()
	snap := m.Snapshot()
	require.Zero(t, snap.EventLatency)
	require.Zero(t, snap.EventsPerSecond)
	require.Zero(t, snap.ErrorRate)
	require.Zero(t, snap.NetworkEfficiency)
}

func TestPruneSamples(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []windowSample{
		{at: base, count: 1},
		{at: base.Add(10 * time.Second), count: 2},
		{at: base.Add(20 * time.Second), count: 3},
	}

	kept := pruneSamples(samples, base.Add(10*time.Second))
	require.Len(t, kept, 1)
	assert.Equal(t, 3.0, kept[0].count)

	// Nothing expired: slice unchanged.
	kept = pruneSamples(kept, base)
	assert.Len(t, kept, 1)
}
