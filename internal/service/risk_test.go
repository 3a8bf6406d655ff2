package service

import (
	"context"
	"testing"
	"time"

	"maker_go/internal/domain"
	"maker_go/internal/infra"
)

func newTestGovernor(store *StateStore, gw *fakeGateway) *RiskGovernor {
	cfg := &infra.Config{}
	cfg.Risk.PauseThreshold = d("0.02")
	cfg.Risk.PriceWindowSec = 10
	cfg.Risk.PauseDurationSec = 60
	cfg.Risk.CooldownSec = 300
	cfg.Risk.MaxDailyLoss = d("0.05")
	return NewRiskGovernor(cfg, store, gw, infra.NewMetrics())
}

func TestVolatilityBreakerTrips(t *testing.T) {
	store := newTestStore()
	gw := &fakeGateway{}
	gov := newTestGovernor(store, gw)
	store.SetBalance(d("10000"), d("10000"))

	now := time.Now()
	// A 3% move inside the window, above the 2% threshold.
	store.UpdateBook(bookAt(now.Add(-5*time.Second), "99", "101"))
	store.UpdateBook(bookAt(now, "102", "104"))
	store.UpsertOrder(trackedOrder("o1", domain.OrderStatusNew))

	if gov.Check(context.Background(), now) {
		t.Fatal("quoting must be blocked through a volatility spike")
	}
	if gw.cancelAllCalls != 1 {
		t.Errorf("cancel-all calls = %d, want 1", gw.cancelAllCalls)
	}
	if len(store.ActiveOrders()) != 0 {
		t.Error("tripping the breaker clears local order tracking")
	}

	paused, cooldown := store.QuietPeriods()
	if !paused.After(now) {
		t.Error("pause deadline not set")
	}
	if !cooldown.After(paused) {
		t.Error("cooldown extends past the pause")
	}

	// Still quiet inside the pause window, no second cancel-all.
	if gov.Check(context.Background(), now.Add(30*time.Second)) {
		t.Error("still paused")
	}
	if gw.cancelAllCalls != 1 {
		t.Errorf("cancel-all calls = %d, pause must not re-trip", gw.cancelAllCalls)
	}

	// Cooldown still blocks after the pause itself expired.
	if gov.Check(context.Background(), paused.Add(time.Second)) {
		t.Error("cooldown still blocks quoting")
	}
}

func TestVolatilityBreakerRecovers(t *testing.T) {
	store := newTestStore()
	gw := &fakeGateway{}
	gov := newTestGovernor(store, gw)
	store.SetBalance(d("10000"), d("10000"))

	now := time.Now()
	// Calm market: 0.5% move.
	store.UpdateBook(bookAt(now.Add(-5*time.Second), "99.5", "100.5"))
	store.UpdateBook(bookAt(now, "100", "101"))

	if !gov.Check(context.Background(), now) {
		t.Error("calm market must allow quoting")
	}
	if gw.cancelAllCalls != 0 {
		t.Error("no cancel-all in a calm market")
	}
}

func TestBreakerCancelRunsOffCaller(t *testing.T) {
	store := newTestStore()
	gw := &fakeGateway{
		cancelAllStarted: make(chan struct{}, 1),
		cancelAllBlock:   make(chan struct{}),
	}
	gov := newTestGovernor(store, gw)
	gov.UseExecutor(func(task func()) { go task() })
	store.SetBalance(d("10000"), d("10000"))

	now := time.Now()
	store.UpdateBook(bookAt(now.Add(-5*time.Second), "99", "101"))
	store.UpdateBook(bookAt(now, "102", "104"))
	store.UpsertOrder(trackedOrder("o1", domain.OrderStatusNew))

	// The venue hangs on the cancel call; Check must still return.
	done := make(chan bool, 1)
	go func() { done <- gov.Check(context.Background(), now) }()
	select {
	case allowed := <-done:
		if allowed {
			t.Fatal("quoting must be blocked through a volatility spike")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("risk check blocked on the venue cancel call")
	}

	if len(store.ActiveOrders()) != 0 {
		t.Error("local order tracking clears without waiting for the venue")
	}

	<-gw.cancelAllStarted
	close(gw.cancelAllBlock)
}

func TestDailyLossHaltIsTerminal(t *testing.T) {
	store := newTestStore()
	gw := &fakeGateway{}
	gov := newTestGovernor(store, gw)

	now := time.Now()
	day := now.UTC().Format("2006-01-02")
	store.SetDailyBaseline(day, d("10000"))
	store.SetBalance(d("9400"), d("9400")) // 6% down, limit is 5%

	if gov.Check(context.Background(), now) {
		t.Fatal("breaching the daily loss limit must block quoting")
	}
	if !store.IsHalted() {
		t.Fatal("breaching the daily loss limit must halt the bot")
	}
	if gw.cancelAllCalls != 1 {
		t.Errorf("cancel-all calls = %d, want 1", gw.cancelAllCalls)
	}

	// Even with the balance recovered, a halt never lifts within a run.
	store.SetBalance(d("11000"), d("11000"))
	if gov.Check(context.Background(), now.Add(time.Hour)) {
		t.Error("halt is terminal for the run")
	}
	if gw.cancelAllCalls != 1 {
		t.Error("halted governor must not keep cancelling")
	}
}

func TestDailyLossWithinLimit(t *testing.T) {
	store := newTestStore()
	gw := &fakeGateway{}
	gov := newTestGovernor(store, gw)

	now := time.Now()
	day := now.UTC().Format("2006-01-02")
	store.SetDailyBaseline(day, d("10000"))
	store.SetBalance(d("9700"), d("9700")) // 3% down, inside the 5% limit

	if !gov.Check(context.Background(), now) {
		t.Error("losses inside the limit must not block quoting")
	}
	if store.IsHalted() {
		t.Error("losses inside the limit must not halt")
	}
}

func TestDailyBaselineRollsAtUTCMidnight(t *testing.T) {
	store := newTestStore()
	gw := &fakeGateway{}
	gov := newTestGovernor(store, gw)

	store.SetDailyBaseline("2026-08-28", d("10000"))
	store.SetBalance(d("9400"), d("9400"))

	// Next UTC day: the baseline re-captures from current capital, so
	// yesterday's drawdown does not count against today.
	now := time.Date(2026, 8, 29, 0, 0, 1, 0, time.UTC)
	if !gov.Check(context.Background(), now) {
		t.Error("fresh day starts unblocked")
	}

	day, baseline := store.DailyBaseline()
	if day != "2026-08-29" {
		t.Errorf("baseline day = %s, want 2026-08-29", day)
	}
	if !baseline.Equal(d("9400")) {
		t.Errorf("baseline = %v, want re-captured 9400", baseline)
	}
}

func TestDailyLossDisabledByZeroLimit(t *testing.T) {
	store := newTestStore()
	gw := &fakeGateway{}
	cfg := &infra.Config{}
	cfg.Risk.PauseThreshold = d("0.02")
	cfg.Risk.PriceWindowSec = 10
	cfg.Risk.PauseDurationSec = 60
	cfg.Risk.CooldownSec = 300
	gov := NewRiskGovernor(cfg, store, gw, infra.NewMetrics())

	now := time.Now()
	store.SetDailyBaseline(now.UTC().Format("2006-01-02"), d("10000"))
	store.SetBalance(d("5000"), d("5000")) // 50% down

	if !gov.Check(context.Background(), now) {
		t.Error("zero limit disables the daily loss gate")
	}
	if store.IsHalted() {
		t.Error("zero limit must never halt")
	}
}
