package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability for the hot path.
// Uses atomic operations for thread-safety. It is exported to Prometheus by MetricsCollector.
type Metrics struct {
	// Counters
	cyclesProcessed atomic.Uint64
	cyclesSkipped   atomic.Uint64
	intentsEmitted  atomic.Uint64
	errorsTotal     atomic.Uint64
	monitorDropped  atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	activePairs       atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordCycle records one evaluation cycle with its latency.
func (m *Metrics) RecordCycle(latencyNs int64, skipped bool) {
	m.cyclesProcessed.Add(1)
	if skipped {
		m.cyclesSkipped.Add(1)
	}
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordIntent records an emitted position intent.
func (m *Metrics) RecordIntent() {
	m.intentsEmitted.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordMonitorDrop records a cycle result the read model could not queue.
func (m *Metrics) RecordMonitorDrop() {
	m.monitorDropped.Add(1)
}

// IncrementConnections increments active feed connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active feed connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// SetActivePairs sets the number of running sequencers.
func (m *Metrics) SetActivePairs(count int32) {
	m.activePairs.Store(count)
}

// AddActivePairs adjusts the number of running sequencers.
func (m *Metrics) AddActivePairs(delta int32) {
	m.activePairs.Add(delta)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CyclesProcessed   uint64
	CyclesSkipped     uint64
	IntentsEmitted    uint64
	ErrorsTotal       uint64
	MonitorDropped    uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	ActivePairs       int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		CyclesProcessed:   m.cyclesProcessed.Load(),
		CyclesSkipped:     m.cyclesSkipped.Load(),
		IntentsEmitted:    m.intentsEmitted.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		MonitorDropped:    m.monitorDropped.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		ActivePairs:       m.activePairs.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.cyclesProcessed.Store(0)
	m.cyclesSkipped.Store(0)
	m.intentsEmitted.Store(0)
	m.errorsTotal.Store(0)
	m.monitorDropped.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.activePairs.Store(0)
}
