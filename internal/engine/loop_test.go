package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
	"maker_go/internal/event"
	"maker_go/internal/execution"
	"maker_go/internal/infra"
	"maker_go/internal/service"
	"maker_go/internal/strategy"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testConfig() *infra.Config {
	cfg := &infra.Config{}
	cfg.Exchange.Symbol = "BTCUSDT"
	cfg.Exchange.QuoteCurrency = "USDT"
	cfg.Exchange.TradingMode = infra.ModeSimulation
	cfg.System.LoopIntervalMS = 10
	cfg.System.OrderRefreshIntervalSec = 1
	cfg.System.StatusReportIntervalSec = 3600
	cfg.System.HealthCheckIntervalSec = 3600
	cfg.System.WSHeartbeatTimeoutSec = 30
	cfg.System.MaxOrderAgeSec = 120
	cfg.System.RESTWorkers = 2
	cfg.Risk.PauseThreshold = d("0.5") // effectively off for these tests
	cfg.Risk.PriceWindowSec = 10
	cfg.Risk.PauseDurationSec = 60
	cfg.Risk.CooldownSec = 60
	return cfg
}

// newTestEngine wires a full paper stack: engine, store, manager, risk
// governor and paper gateway sharing the account queue.
func newTestEngine(t *testing.T, cfg *infra.Config) (*Engine, *service.StateStore, *execution.PaperGateway) {
	t.Helper()

	store := service.NewStateStore(cfg.Exchange.Symbol, d("0.2"), 100)
	metrics := infra.NewMetrics()
	marketQ := make(chan event.Event, 256)
	accountQ := make(chan event.Event, 256)
	paper := execution.NewPaperGateway(cfg.Exchange.Symbol, d("10000"), accountQ)
	store.SetBalance(d("10000"), d("10000"))

	info := domain.MarketInfo{
		Symbol:       "BTCUSDT",
		PriceTick:    d("0.5"),
		QtyStep:      d("0.001"),
		MinOrderQty:  d("0.001"),
		MinNotional:  d("5"),
		MakerFeeRate: d("0.0001"),
	}

	eng := NewEngine(cfg, Deps{
		Store:        store,
		Manager:      service.NewOrderManager(store, nil, metrics),
		Risk:         service.NewRiskGovernor(cfg, store, paper, metrics),
		Strategy:     strategy.NewFixedSpread(d("0.002"), d("0.01"), decimal.Zero),
		Gateway:      paper,
		Paper:        paper,
		Metrics:      metrics,
		Info:         info,
		MarketQueue:  marketQ,
		AccountQueue: accountQ,
	})
	return eng, store, paper
}

func pushBook(e *Engine, bid, ask string) {
	e.MarketQueue <- &event.OrderbookEvent{Book: domain.Orderbook{
		Bids: []domain.PriceLevel{{Price: d(bid), Qty: d("1")}},
		Asks: []domain.PriceLevel{{Price: d(ask), Qty: d("1")}},
		Ts:   time.Now(),
	}}
}

// waitFor polls cond with a deadline, failing the test on timeout.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTickAppliesMarketEvents(t *testing.T) {
	eng, store, _ := newTestEngine(t, testConfig())
	pushBook(eng, "49975", "50025")

	if err := eng.tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if !store.Mid().Equal(d("50000")) {
		t.Errorf("mid = %v, want 50000", store.Mid())
	}
}

func TestTickPlacesTwoSidedQuotes(t *testing.T) {
	eng, store, paper := newTestEngine(t, testConfig())
	ctx := context.Background()

	pushBook(eng, "49975", "50025")
	if err := eng.tick(ctx); err != nil {
		t.Fatal(err)
	}

	// Placements run off-loop; wait for both to land at the gateway.
	waitFor(t, "two resting paper orders", func() bool {
		open, _ := paper.GetOpenOrders(ctx, "BTCUSDT")
		return len(open) == 2
	})

	// The next tick folds the placement results into tracking.
	waitFor(t, "tracked orders", func() bool {
		if err := eng.tick(ctx); err != nil {
			t.Fatal(err)
		}
		return len(store.ActiveOrders()) == 2
	})

	var bid, ask bool
	for _, o := range store.ActiveOrders() {
		switch o.Side {
		case domain.SideBuy:
			bid = o.Price.Equal(d("49950"))
		case domain.SideSell:
			ask = o.Price.Equal(d("50050"))
		}
	}
	if !bid || !ask {
		t.Errorf("quotes = %+v, want 49950 bid and 50050 ask", store.ActiveOrders())
	}
}

func TestTickNoRequoteWhilePending(t *testing.T) {
	eng, _, paper := newTestEngine(t, testConfig())
	ctx := context.Background()

	// Simulate an in-flight placement whose result has not come back.
	eng.pendingPlacements = 1
	pushBook(eng, "49975", "50025")
	if err := eng.tick(ctx); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	open, _ := paper.GetOpenOrders(ctx, "BTCUSDT")
	if len(open) != 0 {
		t.Errorf("engine quoted %d orders with a placement in flight", len(open))
	}
}

func TestStaleBookBlocksQuoting(t *testing.T) {
	eng, _, paper := newTestEngine(t, testConfig())
	ctx := context.Background()

	// Book older than the heartbeat timeout: quoting waits for fresh data.
	eng.MarketQueue <- &event.OrderbookEvent{Book: domain.Orderbook{
		Bids: []domain.PriceLevel{{Price: d("49975"), Qty: d("1")}},
		Asks: []domain.PriceLevel{{Price: d("50025"), Qty: d("1")}},
		Ts:   time.Now().Add(-time.Minute),
	}}
	if err := eng.tick(ctx); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	open, _ := paper.GetOpenOrders(ctx, "BTCUSDT")
	if len(open) != 0 {
		t.Errorf("engine quoted %d orders off a stale book", len(open))
	}
}

func TestPaperFillFlowsThroughEngine(t *testing.T) {
	eng, store, paper := newTestEngine(t, testConfig())
	ctx := context.Background()

	pushBook(eng, "49975", "50025")
	if err := eng.tick(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "resting orders", func() bool {
		open, _ := paper.GetOpenOrders(ctx, "BTCUSDT")
		return len(open) == 2
	})

	// Market trades down through the bid: the buy order fills.
	pushBook(eng, "49900", "49940")
	waitFor(t, "fill applied", func() bool {
		if err := eng.tick(ctx); err != nil {
			t.Fatal(err)
		}
		return store.Position().Equal(d("0.01"))
	})

	m := store.Metrics()
	if m.TotalTrades != 1 {
		t.Errorf("trades = %d, want 1", m.TotalTrades)
	}
	if !m.AvgEntryPrice.Equal(d("49950")) {
		t.Errorf("avg entry = %v, want fill price 49950", m.AvgEntryPrice)
	}
}

func TestStreamFatalStopsTick(t *testing.T) {
	eng, _, _ := newTestEngine(t, testConfig())

	eng.MarketQueue <- &event.StreamFatalEvent{
		Stream: "public",
		Err:    domain.ErrReconnectBudgetExhausted,
	}
	if err := eng.tick(context.Background()); err == nil {
		t.Fatal("a stream fatal event must stop the engine")
	}
}

func TestHaltBlocksQuoting(t *testing.T) {
	eng, store, paper := newTestEngine(t, testConfig())
	ctx := context.Background()

	store.Halt()
	pushBook(eng, "49975", "50025")
	if err := eng.tick(ctx); err != nil {
		t.Fatal(err)
	}

	// The engine keeps running but never quotes again.
	time.Sleep(50 * time.Millisecond)
	open, _ := paper.GetOpenOrders(ctx, "BTCUSDT")
	if len(open) != 0 {
		t.Errorf("halted engine placed %d orders", len(open))
	}
	if eng.pendingPlacements != 0 {
		t.Errorf("pending = %d, want 0", eng.pendingPlacements)
	}
}
