package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/alitto/pond"
	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
	"maker_go/internal/event"
	"maker_go/internal/execution"
	"maker_go/internal/infra"
	"maker_go/internal/service"
	"maker_go/internal/strategy"
)

// Deps bundles everything the engine drives. Queues are created by the
// caller because the stream workers need them before the engine exists.
type Deps struct {
	Store     *service.StateStore
	Manager   *service.OrderManager
	Risk      *service.RiskGovernor
	Strategy  strategy.Strategy
	Gateway   domain.ExchangeGateway
	Paper     *execution.PaperGateway // non-nil in paper modes
	Snapshots *infra.SnapshotStore
	Audit     domain.AuditLogger
	Metrics   *infra.Metrics
	Workers   []domain.StreamWorker
	Info      domain.MarketInfo

	MarketQueue  chan event.Event
	AccountQueue chan event.Event
}

// Engine is the single-goroutine event processor. All state mutation
// happens on the loop goroutine: stream workers only enqueue, and REST
// calls run on a worker pool whose results come back through the
// account queue as events.
type Engine struct {
	cfg *infra.Config
	Deps

	pool   *pond.WorkerPool
	logger *slog.Logger

	// Loop-goroutine state, no locks needed.
	pendingPlacements int
	fatalErr          error
	lastQuote         time.Time
	lastStatus        time.Time
	lastHealth        time.Time
	streamsHealthy    bool
}

// NewEngine assembles the engine around its dependencies.
func NewEngine(cfg *infra.Config, deps Deps) *Engine {
	e := &Engine{
		cfg:            cfg,
		Deps:           deps,
		pool:           pond.New(cfg.System.RESTWorkers, cfg.System.RESTWorkers*4),
		logger:         slog.Default().With("module", "engine"),
		streamsHealthy: true,
	}
	if e.Risk != nil {
		// Breaker cancel-alls run on the same pool as quote REST calls,
		// never on the loop goroutine.
		e.Risk.UseExecutor(func(task func()) { e.pool.Submit(task) })
	}
	return e
}

// Run drives the tick loop until the context is cancelled or a fatal
// condition surfaces. Shutdown is best-effort: cancel working orders,
// persist a final snapshot, stop the streams and the pool.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Engine started",
		slog.String("symbol", e.Store.Symbol()),
		slog.String("mode", e.cfg.Exchange.TradingMode),
		slog.Duration("loop_interval", e.cfg.LoopInterval()))

	ticker := time.NewTicker(e.cfg.LoopInterval())
	defer ticker.Stop()
	defer e.shutdown()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopping")
			return nil
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.logger.Error("Engine fatal", slog.Any("error", err))
				return err
			}
		}
	}
}

// tick is one full cycle: drain every queued event, then run the
// periodic duties in a fixed order.
func (e *Engine) tick(ctx context.Context) error {
	e.drain(e.MarketQueue)
	e.drain(e.AccountQueue)
	if e.fatalErr != nil {
		return e.fatalErr
	}

	now := time.Now()

	if now.Sub(e.lastHealth) >= e.cfg.HealthCheckInterval() {
		e.lastHealth = now
		e.checkHealth(ctx, now)
	}

	quotable := e.Risk.Check(ctx, now)

	if quotable && e.streamsHealthy &&
		e.pendingPlacements == 0 &&
		now.Sub(e.lastQuote) >= e.cfg.OrderRefreshInterval() {
		e.lastQuote = now
		e.refreshQuotes(ctx, now)
	}

	if now.Sub(e.lastStatus) >= e.cfg.StatusReportInterval() {
		e.lastStatus = now
		e.reportStatus(now)
	}

	return nil
}

func (e *Engine) drain(q chan event.Event) {
	for {
		select {
		case ev := <-q:
			e.apply(ev)
		default:
			return
		}
	}
}

func (e *Engine) apply(ev event.Event) {
	start := time.Now()

	switch v := ev.(type) {
	case *event.OrderbookEvent:
		e.Store.UpdateBook(v.Book)
		if e.Paper != nil {
			e.Paper.MarkPrice(v.Book)
		}
		event.ReleaseOrderbookEvent(v)

	case *event.OrderUpdateEvent:
		e.Manager.ApplyOrderUpdate(v.Orders)

	case *event.ExecutionEvent:
		e.Manager.ApplyExecution(v.Fills)

	case *event.PositionEvent:
		e.Store.SetPosition(v.Size)

	case *event.WalletEvent:
		e.Store.SetBalance(v.WalletBalance, v.AvailableBalance)
		if e.Audit != nil {
			if err := e.Audit.LogBalance(&domain.BalanceUpdateRecord{
				Timestamp:        time.Now().UTC(),
				Currency:         v.Coin,
				WalletBalance:    v.WalletBalance,
				AvailableBalance: v.AvailableBalance,
			}); err != nil {
				e.logger.Error("Failed to audit balance", slog.Any("error", err))
			}
		}

	case *event.PlacementResultEvent:
		e.pendingPlacements--
		if v.Err != nil {
			e.Metrics.RecordError()
			e.logger.Error("Order placement failed",
				slog.String("client_id", v.Order.ClientID),
				slog.Any("error", v.Err))
			if domain.IsEngineFatal(v.Err) {
				e.fatalErr = v.Err
			}
			break
		}
		e.Store.UpsertOrder(v.Order)

	case *event.CancelResultEvent:
		if v.Err != nil {
			e.Metrics.RecordError()
			e.logger.Error("Order cancel failed",
				slog.String("order_id", v.OrderID),
				slog.Any("error", v.Err))
		}
		// Success needs no action here: the order stream delivers the
		// Cancelled update and removal happens there.

	case *event.StreamFatalEvent:
		e.fatalErr = v.Err
		e.logger.Error("Stream fatal", slog.String("stream", v.Stream), slog.Any("error", v.Err))

	default:
		e.logger.Warn("Unknown event kind", slog.String("kind", ev.Kind()))
	}

	e.Metrics.RecordEvent(time.Since(start).Nanoseconds())
}

// checkHealth gates quoting on stream freshness and refreshes account
// state over REST as a cross-check against missed private events.
func (e *Engine) checkHealth(ctx context.Context, now time.Time) {
	healthy := true
	for _, w := range e.Workers {
		if !w.IsConnected() {
			healthy = false
			continue
		}
		if last := w.LastMessageAt(); !last.IsZero() && now.Sub(last) > e.cfg.WSHeartbeatTimeout() {
			e.logger.Warn("Stream heartbeat stale", slog.Duration("age", now.Sub(last)))
			healthy = false
		}
	}
	if healthy != e.streamsHealthy {
		if healthy {
			e.logger.Info("Streams healthy again, quoting resumes")
		} else {
			e.logger.Warn("Streams unhealthy, quoting suspended")
		}
		e.streamsHealthy = healthy
	}

	coin := e.cfg.Exchange.QuoteCurrency
	symbol := e.Store.Symbol()
	e.pool.Submit(func() {
		wallet, available, err := e.Gateway.GetBalance(ctx, coin)
		if err != nil {
			e.logger.Warn("Balance health check failed", slog.Any("error", err))
			return
		}
		e.AccountQueue <- &event.WalletEvent{Coin: coin, WalletBalance: wallet, AvailableBalance: available}
	})
	e.pool.Submit(func() {
		size, err := e.Gateway.GetPosition(ctx, symbol)
		if err != nil {
			e.logger.Warn("Position health check failed", slog.Any("error", err))
			return
		}
		e.AccountQueue <- &event.PositionEvent{Symbol: symbol, Size: size}
	})
}

// refreshQuotes reconciles the working orders against the strategy's
// target: cancel what deviates or went stale, then place what is
// missing. All REST work runs off-loop; results return as events.
func (e *Engine) refreshQuotes(ctx context.Context, now time.Time) {
	book := e.Store.LastBook()
	if book.Ts.IsZero() {
		return
	}
	if maxAge := e.cfg.WSHeartbeatTimeout(); maxAge > 0 && now.Sub(book.Ts) > maxAge {
		e.logger.Warn("Quote refresh skipped",
			slog.Any("reason", domain.ErrStaleMarketData),
			slog.Duration("book_age", now.Sub(book.Ts)))
		return
	}

	quotes, ok := e.Strategy.TargetQuotes(strategy.MarketView{
		Mid:         e.Store.Mid(),
		SmoothedMid: e.Store.SmoothedMid(),
		Position:    e.Store.Position(),
		Book:        book,
		Info:        e.Info,
	})
	if !ok {
		return
	}

	stale := make(map[string]bool)
	for _, o := range e.Manager.StaleOrders(now, e.cfg.MaxOrderAge()) {
		stale[o.ID] = true
	}

	var haveBid, haveAsk bool
	for _, o := range e.Store.ActiveOrders() {
		keep := false
		switch o.Side {
		case domain.SideBuy:
			keep = o.Price.Equal(quotes.BidPrice) && !haveBid
			haveBid = haveBid || keep
		case domain.SideSell:
			keep = o.Price.Equal(quotes.AskPrice) && !haveAsk
			haveAsk = haveAsk || keep
		}
		if keep && !stale[o.ID] {
			continue
		}
		e.submitCancel(ctx, o.ID)
	}

	if !haveBid {
		e.submitPlacement(ctx, quotes.BidPrice, quotes.BidQty, domain.SideBuy)
	}
	if !haveAsk {
		e.submitPlacement(ctx, quotes.AskPrice, quotes.AskQty, domain.SideSell)
	}
}

func (e *Engine) submitPlacement(ctx context.Context, price, qty decimal.Decimal, side domain.Side) {
	symbol := e.Store.Symbol()
	req := domain.OrderRequest{
		Symbol:      symbol,
		Side:        side,
		OrderType:   domain.OrderTypeLimit,
		Price:       price,
		Qty:         qty,
		TimeInForce: domain.TimeInForcePostOnly,
		ClientID:    domain.NewClientOrderID(symbol, side),
		ReduceOnly:  e.reducesPosition(side, qty),
	}

	e.pendingPlacements++
	e.pool.Submit(func() {
		id, err := e.Gateway.PlaceOrder(ctx, req)
		order := domain.Order{
			ID:         id,
			ClientID:   req.ClientID,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Price:      req.Price,
			Qty:        req.Qty,
			Status:     domain.OrderStatusNew,
			ReduceOnly: req.ReduceOnly,
			CreatedAt:  time.Now(),
		}
		e.AccountQueue <- &event.PlacementResultEvent{Order: order, Err: err}
	})
}

func (e *Engine) submitCancel(ctx context.Context, orderID string) {
	symbol := e.Store.Symbol()
	e.pool.Submit(func() {
		_, err := e.Gateway.CancelOrder(ctx, symbol, orderID)
		e.AccountQueue <- &event.CancelResultEvent{OrderID: orderID, Err: err}
	})
}

// reducesPosition reports whether an order on side only closes existing
// exposure, so it can be flagged reduce-only.
func (e *Engine) reducesPosition(side domain.Side, qty decimal.Decimal) bool {
	pos := e.Store.Position()
	if side == domain.SideSell {
		return pos.IsPositive() && qty.LessThanOrEqual(pos)
	}
	return pos.IsNegative() && qty.LessThanOrEqual(pos.Neg())
}

// reportStatus logs the periodic status line, appends a metrics row to
// the audit log and persists a state snapshot.
func (e *Engine) reportStatus(now time.Time) {
	m := e.Store.Metrics()
	mid := e.Store.Mid()
	wallet, _ := e.Store.Balance()
	_, baseline := e.Store.DailyBaseline()

	dailyPnL := decimal.Zero
	dailyLossPct := decimal.Zero
	if baseline.IsPositive() {
		dailyPnL = wallet.Sub(baseline)
		dailyLossPct = dailyPnL.Div(baseline).Mul(decimal.NewFromInt(100))
	}

	e.logger.Info("Status",
		slog.String("mid", mid.String()),
		slog.String("position", m.Holdings.String()),
		slog.String("realized_pnl", m.RealizedPnL.String()),
		slog.String("unrealized_pnl", m.UnrealizedPnL(mid).String()),
		slog.String("fees", m.TotalFees.String()),
		slog.Int64("trades", m.TotalTrades),
		slog.Int("active_orders", len(e.Store.ActiveOrders())),
		slog.String("wallet", wallet.String()))

	if e.Audit != nil {
		if err := e.Audit.LogMetrics(&domain.BotMetricsRecord{
			Timestamp:       now.UTC(),
			Symbol:          e.Store.Symbol(),
			TotalTrades:     m.TotalTrades,
			NetRealizedPnL:  m.NetRealizedPnL(),
			RealizedPnL:     m.RealizedPnL,
			UnrealizedPnL:   m.UnrealizedPnL(mid),
			GrossProfit:     m.GrossProfit,
			GrossLoss:       m.GrossLoss,
			TotalFees:       m.TotalFees,
			Wins:            m.Wins,
			Losses:          m.Losses,
			WinRate:         m.WinRate(),
			CurrentHoldings: m.Holdings,
			AvgEntryPrice:   m.AvgEntryPrice,
			DailyPnL:        dailyPnL,
			DailyLossPct:    dailyLossPct,
			MidPrice:        mid,
		}); err != nil {
			e.logger.Error("Failed to audit metrics", slog.Any("error", err))
		}
	}

	if e.Snapshots != nil {
		if err := e.Snapshots.Save(e.Store.ExportSnapshot()); err != nil {
			e.logger.Error("Failed to save snapshot", slog.Any("error", err))
		}
	}
}

func (e *Engine) shutdown() {
	e.logger.Info("Engine shutting down")

	for _, w := range e.Workers {
		w.Disconnect()
	}
	e.pool.StopAndWait()

	// Fresh context: the run context is already cancelled by now.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := e.Gateway.CancelAllOrders(ctx, e.Store.Symbol()); err != nil {
		e.logger.Error("Shutdown cancel-all failed", slog.Any("error", err))
	} else {
		e.Store.ReplaceOrders(nil)
	}

	if e.Snapshots != nil {
		if err := e.Snapshots.Save(e.Store.ExportSnapshot()); err != nil {
			e.logger.Error("Failed to save final snapshot", slog.Any("error", err))
		}
	}

	snap := e.Metrics.Snapshot()
	e.logger.Info("Engine stopped",
		slog.Uint64("events_processed", snap.EventsProcessed),
		slog.Uint64("orders_placed", snap.OrdersPlaced),
		slog.Uint64("orders_cancelled", snap.OrdersCancelled),
		slog.Uint64("fills_applied", snap.FillsApplied))
}
