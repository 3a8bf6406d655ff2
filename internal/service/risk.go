package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
	"maker_go/internal/infra"
)

// RiskGovernor enforces the two safety layers above the strategy: a
// volatility circuit breaker that pauses quoting through sudden price
// moves, and a daily-loss limit that halts the bot for good. A halted
// bot keeps processing events but never quotes again within the run.
type RiskGovernor struct {
	store   *StateStore
	gateway domain.ExchangeGateway
	metrics *infra.Metrics
	logger  *slog.Logger

	pauseThreshold decimal.Decimal
	priceWindow    time.Duration
	pauseDuration  time.Duration
	cooldown       time.Duration
	maxDailyLoss   decimal.Decimal

	// submit runs the venue cancel call off the caller's goroutine so a
	// slow venue never stalls the engine tick. Defaults to inline
	// execution until UseExecutor is called.
	submit func(task func())
}

// NewRiskGovernor builds a governor from the risk configuration block.
func NewRiskGovernor(cfg *infra.Config, store *StateStore, gateway domain.ExchangeGateway, metrics *infra.Metrics) *RiskGovernor {
	return &RiskGovernor{
		store:          store,
		gateway:        gateway,
		metrics:        metrics,
		logger:         slog.Default().With("module", "risk"),
		pauseThreshold: cfg.Risk.PauseThreshold,
		priceWindow:    cfg.PriceWindow(),
		pauseDuration:  cfg.PauseDuration(),
		cooldown:       cfg.Cooldown(),
		maxDailyLoss:   cfg.Risk.MaxDailyLoss,
		submit:         func(task func()) { task() },
	}
}

// UseExecutor routes the governor's venue calls through the given
// submitter, typically the engine's REST worker pool.
func (g *RiskGovernor) UseExecutor(submit func(task func())) {
	g.submit = submit
}

// Check runs all risk gates and reports whether quoting is allowed this
// tick. Tripping a gate cancels all working orders as a side effect.
func (g *RiskGovernor) Check(ctx context.Context, now time.Time) bool {
	if g.store.IsHalted() {
		return false
	}

	g.rollDailyBaseline(now)

	if g.checkDailyLoss(ctx) {
		return false
	}

	paused, cooldown := g.store.QuietPeriods()
	if now.Before(paused) || now.Before(cooldown) {
		return false
	}
	if g.metrics != nil {
		g.metrics.SetBreakerPaused(false)
	}

	return !g.checkVolatility(ctx, now)
}

// rollDailyBaseline re-captures the loss baseline when the UTC day
// changes, so the limit always measures loss since local midnight UTC.
func (g *RiskGovernor) rollDailyBaseline(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	storedDay, _ := g.store.DailyBaseline()
	if storedDay == day {
		return
	}

	wallet, _ := g.store.Balance()
	g.store.SetDailyBaseline(day, wallet)
	g.logger.Info("Daily loss baseline captured",
		slog.String("day", day),
		slog.String("capital", wallet.String()))
}

func (g *RiskGovernor) checkDailyLoss(ctx context.Context) bool {
	if g.maxDailyLoss.IsZero() {
		return false
	}
	_, baseline := g.store.DailyBaseline()
	if !baseline.IsPositive() {
		return false
	}

	wallet, _ := g.store.Balance()
	capital := wallet
	if mid := g.store.Mid(); mid.IsPositive() {
		tm := g.store.Metrics()
		capital = capital.Add(tm.UnrealizedPnL(mid))
	}
	dailyPnL := capital.Sub(baseline)
	if !dailyPnL.IsNegative() {
		return false
	}

	lossFraction := dailyPnL.Neg().Div(baseline)
	if lossFraction.LessThanOrEqual(g.maxDailyLoss) {
		return false
	}

	g.logger.Error("Daily loss limit breached, halting",
		slog.String("baseline", baseline.String()),
		slog.String("capital", capital.String()),
		slog.String("loss_fraction", lossFraction.String()),
		slog.String("limit", g.maxDailyLoss.String()))

	g.store.Halt()
	if g.metrics != nil {
		g.metrics.SetHalted(true)
	}
	g.cancelAll(ctx)
	return true
}

func (g *RiskGovernor) checkVolatility(ctx context.Context, now time.Time) bool {
	start, end, ok := g.store.PriceRange(now, g.priceWindow)
	if !ok || !start.IsPositive() {
		return false
	}

	move := end.Sub(start).Abs().Div(start)
	if move.LessThanOrEqual(g.pauseThreshold) {
		return false
	}

	pauseEnd := now.Add(g.pauseDuration)
	g.store.PauseUntil(pauseEnd)
	g.store.CooldownUntil(pauseEnd.Add(g.cooldown))
	if g.metrics != nil {
		g.metrics.SetBreakerPaused(true)
	}

	g.logger.Warn("Volatility breaker tripped",
		slog.String("move", move.String()),
		slog.String("threshold", g.pauseThreshold.String()),
		slog.Duration("pause", g.pauseDuration),
		slog.Duration("cooldown", g.cooldown))

	g.cancelAll(ctx)
	return true
}

// cancelAll clears local tracking immediately and pushes the venue
// cancel through the executor. Should the call fail, any order still
// alive on the venue comes back through the order stream and is
// re-adopted.
func (g *RiskGovernor) cancelAll(ctx context.Context) {
	g.store.ReplaceOrders(nil)
	symbol := g.store.Symbol()
	g.submit(func() {
		if _, err := g.gateway.CancelAllOrders(ctx, symbol); err != nil {
			g.logger.Error("Failed to cancel all orders", slog.Any("error", err))
		}
	})
}
