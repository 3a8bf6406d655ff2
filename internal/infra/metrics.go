package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	eventsProcessed atomic.Uint64
	ordersPlaced    atomic.Uint64
	ordersCancelled atomic.Uint64
	fillsApplied    atomic.Uint64
	retriesTotal    atomic.Uint64
	reconnects      atomic.Uint64
	errorsTotal     atomic.Uint64

	// Latency tracking (queue drain to state applied)
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeStreams atomic.Int32
	breakerPaused atomic.Int32 // 1 = paused, 0 = quoting
	halted        atomic.Int32 // 1 = daily-loss halt tripped
}

// NewMetrics creates a fresh metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordEvent records an event application with latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordOrderPlaced records a successful order submission.
func (m *Metrics) RecordOrderPlaced() {
	m.ordersPlaced.Add(1)
}

// RecordOrderCancelled records a successful cancel.
func (m *Metrics) RecordOrderCancelled() {
	m.ordersCancelled.Add(1)
}

// RecordFill records an applied execution.
func (m *Metrics) RecordFill() {
	m.fillsApplied.Add(1)
}

// RecordRetry records one retry attempt inside the gateway.
func (m *Metrics) RecordRetry() {
	m.retriesTotal.Add(1)
}

// RecordReconnect records one stream reconnect attempt.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// IncrementStreams increments connected stream count by 1.
func (m *Metrics) IncrementStreams() {
	m.activeStreams.Add(1)
}

// DecrementStreams decrements connected stream count by 1.
func (m *Metrics) DecrementStreams() {
	m.activeStreams.Add(-1)
}

// SetBreakerPaused sets the volatility breaker state (true = paused).
func (m *Metrics) SetBreakerPaused(paused bool) {
	if paused {
		m.breakerPaused.Store(1)
	} else {
		m.breakerPaused.Store(0)
	}
}

// SetHalted marks the terminal daily-loss halt.
func (m *Metrics) SetHalted(halted bool) {
	if halted {
		m.halted.Store(1)
	} else {
		m.halted.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed uint64
	OrdersPlaced    uint64
	OrdersCancelled uint64
	FillsApplied    uint64
	RetriesTotal    uint64
	Reconnects      uint64
	ErrorsTotal     uint64
	AvgLatencyNs    int64
	ActiveStreams   int32
	BreakerPaused   bool
	Halted          bool
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsProcessed: m.eventsProcessed.Load(),
		OrdersPlaced:    m.ordersPlaced.Load(),
		OrdersCancelled: m.ordersCancelled.Load(),
		FillsApplied:    m.fillsApplied.Load(),
		RetriesTotal:    m.retriesTotal.Load(),
		Reconnects:      m.reconnects.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		AvgLatencyNs:    avgLatency,
		ActiveStreams:   m.activeStreams.Load(),
		BreakerPaused:   m.breakerPaused.Load() == 1,
		Halted:          m.halted.Load() == 1,
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.ordersPlaced.Store(0)
	m.ordersCancelled.Store(0)
	m.fillsApplied.Store(0)
	m.retriesTotal.Store(0)
	m.reconnects.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeStreams.Store(0)
	m.breakerPaused.Store(0)
	m.halted.Store(0)
}
