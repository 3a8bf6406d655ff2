package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeGateway defines the typed REST surface of the venue.
// Implementations own the retry policy and error classification: any
// error returned here has already survived (or bypassed) retries.
type ExchangeGateway interface {
	GetInstrumentInfo(ctx context.Context, symbol string) (MarketInfo, error)
	GetBalance(ctx context.Context, coin string) (wallet, available decimal.Decimal, err error)
	GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	CancelAllOrders(ctx context.Context, symbol string) (bool, error)
}

// StreamWorker defines the interface for exchange WebSocket connectors
type StreamWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	LastMessageAt() time.Time
}

// AuditLogger is the append-only audit trail. Records are written for
// analysis only and never read back into control flow.
type AuditLogger interface {
	LogOrderEvent(rec *OrderEventRecord) error
	LogFill(rec *TradeFillRecord) error
	LogBalance(rec *BalanceUpdateRecord) error
	LogMetrics(rec *BotMetricsRecord) error
	Close() error
}
