// Package monitor aggregates rolling pipeline metrics: delivery
// latency, throughput, memory footprint, a battery-impact proxy,
// network efficiency, and error rate. Every pipeline stage feeds it;
// snapshots are cheap lock-scoped reads that never wait on pipeline
// activity.
package monitor

import (
	"sync"
	"time"
)

// latencyAlpha is the smoothing factor for the latency EMA.
const latencyAlpha = 0.2

// defaultWindow is the sliding window for throughput and the battery
// proxy.
const defaultWindow = 60 * time.Second

// Snapshot is a point-in-time view of the rolling counters.
// It is derived on demand and never persisted.
type Snapshot struct {
	// EventLatency is the exponential moving average of
	// enqueue-to-ack duration.
	EventLatency time.Duration

	// EventsPerSecond is acked events over the sliding window.
	EventsPerSecond float64

	// MemoryUsage is queued bytes plus the in-flight payload buffer.
	MemoryUsage int64

	// BatteryImpact is CPU-seconds spent encoding and delivering per
	// wall-clock second of the sliding window.
	BatteryImpact float64

	// NetworkEfficiency is wire bytes divided by raw bytes across
	// all encoded batches (lower is better; 1.0 means no gain).
	NetworkEfficiency float64

	// ErrorRate is terminal plus retry-exhausted failures over total
	// delivery attempts.
	ErrorRate float64

	// QueueDepth is the current number of queued events.
	QueueDepth int

	// DroppedCount is the lifetime overflow-drop total.
	DroppedCount int64

	// InvalidCount is the lifetime count of rejected track calls.
	InvalidCount int64

	// DeliveredCount is the lifetime count of acked events.
	DeliveredCount int64

	// FailedBatches is the lifetime count of terminally failed batches.
	FailedBatches int64
}

type windowSample struct {
	at    time.Time
	count float64
}

// Monitor holds the rolling counters. All methods are safe for
// concurrent use.
type Monitor struct {
	mu sync.Mutex

	emaLatency   float64 // nanoseconds
	emaSeeded    bool
	window       time.Duration
	ackSamples   []windowSample
	cpuSamples   []windowSample
	queueBytes   int64
	inflight     int64
	queueDepth   int
	dropped      int64
	invalid      int64
	delivered    int64
	failed       int64
	attempts     int64
	failures     int64
	rawBytes     int64
	wireBytes    int64
	now          func() time.Time
}

// New creates a monitor with the default sliding window.
func New() *Monitor {
	return &Monitor{window: defaultWindow, now: time.Now}
}

// RecordAck records a batch acknowledgment: event count and the
// enqueue-to-ack latency of the oldest event in the batch.
func (m *Monitor) RecordAck(count int, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.emaSeeded {
		m.emaLatency = float64(latency)
		m.emaSeeded = true
	} else {
		m.emaLatency = latencyAlpha*float64(latency) + (1-latencyAlpha)*m.emaLatency
	}
	m.delivered += int64(count)
	m.ackSamples = append(m.ackSamples, windowSample{at: m.now(), count: float64(count)})
	m.prune()
}

// RecordAttempt records one delivery attempt and whether it failed.
func (m *Monitor) RecordAttempt(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if failed {
		m.failures++
	}
}

// RecordTerminal records a batch that will never be delivered.
func (m *Monitor) RecordTerminal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

// RecordInvalid records a track call rejected by validation.
func (m *Monitor) RecordInvalid() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalid++
}

// RecordEncode records codec output sizes and the CPU time spent.
func (m *Monitor) RecordEncode(rawBytes, wireBytes int, cpu time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rawBytes += int64(rawBytes)
	m.wireBytes += int64(wireBytes)
	m.cpuSamples = append(m.cpuSamples, windowSample{at: m.now(), count: cpu.Seconds()})
	m.prune()
}

// RecordSendCPU records wall time spent inside a delivery attempt.
// It approximates CPU cost for the battery proxy.
func (m *Monitor) RecordSendCPU(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cpuSamples = append(m.cpuSamples, windowSample{at: m.now(), count: d.Seconds()})
	m.prune()
}

// SetQueueUsage updates the queue gauges.
func (m *Monitor) SetQueueUsage(depth int, queueBytes, inflightBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queueDepth = depth
	m.queueBytes = queueBytes
	m.inflight = inflightBytes
}

// SetDropped updates the lifetime overflow-drop gauge.
func (m *Monitor) SetDropped(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = n
}

// Snapshot derives the current metrics.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()

	snap := Snapshot{
		EventLatency:   time.Duration(m.emaLatency),
		MemoryUsage:    m.queueBytes + m.inflight,
		QueueDepth:     m.queueDepth,
		DroppedCount:   m.dropped,
		InvalidCount:   m.invalid,
		DeliveredCount: m.delivered,
		FailedBatches:  m.failed,
	}

	windowSec := m.window.Seconds()
	var acked float64
	for _, s := range m.ackSamples {
		acked += s.count
	}
	snap.EventsPerSecond = acked / windowSec

	var cpu float64
	for _, s := range m.cpuSamples {
		cpu += s.count
	}
	snap.BatteryImpact = cpu / windowSec

	if m.rawBytes > 0 {
		snap.NetworkEfficiency = float64(m.wireBytes) / float64(m.rawBytes)
	}
	if m.attempts > 0 {
		snap.ErrorRate = float64(m.failures) / float64(m.attempts)
	}
	return snap
}

// prune discards window samples older than the window (must hold lock).
func (m *Monitor) prune() {
	cutoff := m.now().Add(-m.window)
	m.ackSamples = pruneSamples(m.ackSamples, cutoff)
	m.cpuSamples = pruneSamples(m.cpuSamples, cutoff)
}

func pruneSamples(samples []windowSample, cutoff time.Time) []windowSample {
	i := 0
	for ; i < len(samples); i++ {
		if samples[i].at.After(cutoff) {
			break
		}
	}
	if i == 0 {
		return samples
	}
	return append(samples[:0], samples[i:]...)
}
