package infra

import (
	"sync"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordEvent(1000)
	m.RecordEvent(3000)
	m.RecordOrderPlaced()
	m.RecordOrderCancelled()
	m.RecordFill()
	m.RecordRetry()
	m.RecordReconnect()
	m.RecordError()

	snap := m.Snapshot()

	if snap.EventsProcessed != 2 {
		t.Errorf("EventsProcessed = %d, want 2", snap.EventsProcessed)
	}
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("AvgLatencyNs = %d, want 2000", snap.AvgLatencyNs)
	}
	if snap.OrdersPlaced != 1 || snap.OrdersCancelled != 1 || snap.FillsApplied != 1 {
		t.Error("order/fill counters not recorded")
	}
	if snap.RetriesTotal != 1 || snap.Reconnects != 1 || snap.ErrorsTotal != 1 {
		t.Error("retry/reconnect/error counters not recorded")
	}
}

func TestMetricsGauges(t *testing.T) {
	m := NewMetrics()

	m.IncrementStreams()
	m.IncrementStreams()
	m.DecrementStreams()
	m.SetBreakerPaused(true)
	m.SetHalted(true)

	snap := m.Snapshot()
	if snap.ActiveStreams != 1 {
		t.Errorf("ActiveStreams = %d, want 1", snap.ActiveStreams)
	}
	if !snap.BreakerPaused || !snap.Halted {
		t.Error("gauges should be set")
	}

	m.SetBreakerPaused(false)
	if m.Snapshot().BreakerPaused {
		t.Error("breaker gauge should clear")
	}
}

func TestMetricsConcurrency(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordEvent(100)
				m.RecordFill()
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.EventsProcessed != 1000 {
		t.Errorf("EventsProcessed = %d, want 1000", snap.EventsProcessed)
	}
	if snap.FillsApplied != 1000 {
		t.Errorf("FillsApplied = %d, want 1000", snap.FillsApplied)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordEvent(100)
	m.SetHalted(true)
	m.Reset()

	snap := m.Snapshot()
	if snap.EventsProcessed != 0 || snap.Halted {
		t.Error("Reset should clear all metrics")
	}
}
