package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
	"maker_go/internal/event"
)

// PaperGateway is an in-memory ExchangeGateway for DryRun and
// Simulation modes. Orders rest in a local book and fill when the
// market mid crosses them; fills and lifecycle updates flow through the
// same event queue the private stream would use, so everything above
// the gateway behaves identically to live trading.
type PaperGateway struct {
	mu sync.Mutex

	symbol    string
	info      domain.MarketInfo
	wallet    decimal.Decimal
	available decimal.Decimal
	position  decimal.Decimal
	leverage  int
	metrics   domain.TradeMetrics

	orders      map[string]*domain.Order
	nextOrderID int64
	nextTradeID int64

	inbox  chan<- event.Event
	logger *slog.Logger
}

// NewPaperGateway creates a paper gateway seeded with an initial quote
// balance. Events are pushed into inbox exactly like the private stream.
func NewPaperGateway(symbol string, initialBalance decimal.Decimal, inbox chan<- event.Event) *PaperGateway {
	return &PaperGateway{
		symbol:    symbol,
		wallet:    initialBalance,
		available: initialBalance,
		leverage:  1,
		orders:    make(map[string]*domain.Order),
		inbox:     inbox,
		logger:    slog.Default().With("module", "paper_gateway"),
	}
}

// SetInstrumentInfo overrides the default synthetic instrument, e.g.
// with real venue rules fetched in DryRun mode.
func (p *PaperGateway) SetInstrumentInfo(info domain.MarketInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = info
}

func (p *PaperGateway) GetInstrumentInfo(ctx context.Context, symbol string) (domain.MarketInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.info.Symbol != "" {
		return p.info, nil
	}
	return domain.MarketInfo{
		Symbol:       symbol,
		PriceTick:    decimal.NewFromFloat(0.1),
		QtyStep:      decimal.NewFromFloat(0.001),
		MinOrderQty:  decimal.NewFromFloat(0.001),
		MinNotional:  decimal.NewFromInt(5),
		MakerFeeRate: decimal.NewFromFloat(0.0001),
		TakerFeeRate: decimal.NewFromFloat(0.0006),
	}, nil
}

func (p *PaperGateway) GetBalance(ctx context.Context, coin string) (decimal.Decimal, decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wallet, p.available, nil
}

func (p *PaperGateway) GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

func (p *PaperGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage = leverage
	return nil
}

func (p *PaperGateway) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Order, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, *o)
	}
	return out, nil
}

// PlaceOrder accepts the order into the paper book and emits the same
// "New" confirmation the private stream would deliver.
func (p *PaperGateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	p.mu.Lock()
	p.nextOrderID++
	order := &domain.Order{
		ID:         fmt.Sprintf("paper-%d", p.nextOrderID),
		ClientID:   req.ClientID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Price:      req.Price,
		Qty:        req.Qty,
		Status:     domain.OrderStatusNew,
		ReduceOnly: req.ReduceOnly,
		CreatedAt:  time.Now(),
	}
	p.orders[order.ID] = order
	update := *order
	p.mu.Unlock()

	p.emit(&event.OrderUpdateEvent{Orders: []domain.Order{update}, Ts: update.CreatedAt})
	return update.ID, nil
}

func (p *PaperGateway) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	p.mu.Lock()
	order, ok := p.orders[orderID]
	if !ok {
		p.mu.Unlock()
		// Matches the live gateway: an order already gone counts as cancelled.
		return true, nil
	}
	delete(p.orders, orderID)
	update := *order
	update.Status = domain.OrderStatusCancelled
	p.mu.Unlock()

	p.emit(&event.OrderUpdateEvent{Orders: []domain.Order{update}, Ts: time.Now()})
	return true, nil
}

func (p *PaperGateway) CancelAllOrders(ctx context.Context, symbol string) (bool, error) {
	p.mu.Lock()
	updates := make([]domain.Order, 0, len(p.orders))
	for id, o := range p.orders {
		u := *o
		u.Status = domain.OrderStatusCancelled
		updates = append(updates, u)
		delete(p.orders, id)
	}
	p.mu.Unlock()

	if len(updates) > 0 {
		p.emit(&event.OrderUpdateEvent{Orders: updates, Ts: time.Now()})
	}
	return true, nil
}

// MarkPrice advances the paper market: any resting order the new book
// crosses fills completely at its limit price as a maker. The engine
// calls this on every orderbook event in paper modes.
func (p *PaperGateway) MarkPrice(book domain.Orderbook) {
	bestBid := book.BestBid()
	bestAsk := book.BestAsk()

	p.mu.Lock()
	var fills []domain.TradeFill
	var updates []domain.Order

	for id, o := range p.orders {
		crossed := (o.Side == domain.SideBuy && !bestAsk.IsZero() && bestAsk.LessThanOrEqual(o.Price)) ||
			(o.Side == domain.SideSell && !bestBid.IsZero() && bestBid.GreaterThanOrEqual(o.Price))
		if !crossed {
			continue
		}

		p.nextTradeID++
		fee := o.Price.Mul(o.Qty).Mul(p.makerFeeLocked())
		realized := p.metrics.ApplyFill(o.Side, o.Price, o.Qty, fee)
		if o.Side == domain.SideBuy {
			p.position = p.position.Add(o.Qty)
		} else {
			p.position = p.position.Sub(o.Qty)
		}
		p.wallet = p.wallet.Add(realized).Sub(fee)
		p.available = p.wallet

		fills = append(fills, domain.TradeFill{
			OrderID:     id,
			TradeID:     fmt.Sprintf("paper-trade-%d", p.nextTradeID),
			Symbol:      o.Symbol,
			Side:        o.Side,
			ExecPrice:   o.Price,
			ExecQty:     o.Qty,
			Fee:         fee,
			FeeCurrency: "USDT",
			Role:        domain.RoleMaker,
			Timestamp:   book.Ts,
		})

		filled := *o
		filled.Status = domain.OrderStatusFilled
		filled.CumExecQty = o.Qty
		updates = append(updates, filled)
		delete(p.orders, id)
	}
	wallet, available, position := p.wallet, p.available, p.position
	p.mu.Unlock()

	if len(fills) == 0 {
		return
	}

	p.emit(&event.ExecutionEvent{Fills: fills})
	p.emit(&event.OrderUpdateEvent{Orders: updates, Ts: book.Ts})
	p.emit(&event.PositionEvent{Symbol: p.symbol, Size: position})
	p.emit(&event.WalletEvent{Coin: "USDT", WalletBalance: wallet, AvailableBalance: available})
}

func (p *PaperGateway) makerFeeLocked() decimal.Decimal {
	if p.info.Symbol != "" {
		return p.info.MakerFeeRate
	}
	return decimal.NewFromFloat(0.0001)
}

func (p *PaperGateway) emit(ev event.Event) {
	select {
	case p.inbox <- ev:
	default:
		p.logger.Warn("Paper event queue full, dropping event", slog.String("kind", ev.Kind()))
	}
}
