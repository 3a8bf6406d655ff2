package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestStore() *StateStore {
	return NewStateStore("BTCUSDT", d("0.2"), 100)
}

func bookAt(ts time.Time, bid, ask string) domain.Orderbook {
	return domain.Orderbook{
		Bids: []domain.PriceLevel{{Price: d(bid), Qty: d("1")}},
		Asks: []domain.PriceLevel{{Price: d(ask), Qty: d("1")}},
		Ts:   ts,
	}
}

// fakeGateway is an in-memory ExchangeGateway for service tests.
type fakeGateway struct {
	openOrders     []domain.Order
	openOrdersErr  error
	cancelAllCalls int
	cancelledIDs   []string

	// When set, CancelAllOrders signals cancelAllStarted and then parks
	// on cancelAllBlock, simulating a venue that stops answering.
	cancelAllStarted chan struct{}
	cancelAllBlock   chan struct{}
}

func (f *fakeGateway) GetInstrumentInfo(ctx context.Context, symbol string) (domain.MarketInfo, error) {
	return domain.MarketInfo{Symbol: symbol}, nil
}

func (f *fakeGateway) GetBalance(ctx context.Context, coin string) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}

func (f *fakeGateway) GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (f *fakeGateway) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	return f.openOrders, f.openOrdersErr
}

func (f *fakeGateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	return "fake-order", nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	f.cancelledIDs = append(f.cancelledIDs, orderID)
	return true, nil
}

func (f *fakeGateway) CancelAllOrders(ctx context.Context, symbol string) (bool, error) {
	f.cancelAllCalls++
	if f.cancelAllStarted != nil {
		f.cancelAllStarted <- struct{}{}
		<-f.cancelAllBlock
	}
	return true, nil
}

// fakeAudit records audit writes for assertions.
type fakeAudit struct {
	orderEvents []*domain.OrderEventRecord
	fills       []*domain.TradeFillRecord
	balances    []*domain.BalanceUpdateRecord
	metrics     []*domain.BotMetricsRecord
}

func (f *fakeAudit) LogOrderEvent(rec *domain.OrderEventRecord) error {
	f.orderEvents = append(f.orderEvents, rec)
	return nil
}

func (f *fakeAudit) LogFill(rec *domain.TradeFillRecord) error {
	f.fills = append(f.fills, rec)
	return nil
}

func (f *fakeAudit) LogBalance(rec *domain.BalanceUpdateRecord) error {
	f.balances = append(f.balances, rec)
	return nil
}

func (f *fakeAudit) LogMetrics(rec *domain.BotMetricsRecord) error {
	f.metrics = append(f.metrics, rec)
	return nil
}

func (f *fakeAudit) Close() error { return nil }
