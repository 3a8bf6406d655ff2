package event

import (
	"time"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
)

// Event is anything that can be enqueued for the engine loop. Stream
// callbacks only construct events and enqueue them; all state mutation
// happens on the loop goroutine.
type Event interface {
	Kind() string
}

// OrderbookEvent carries a public top-of-book update (market queue).
type OrderbookEvent struct {
	Book domain.Orderbook
}

func (*OrderbookEvent) Kind() string { return "orderbook" }

// OrderUpdateEvent carries private order status updates (account queue).
type OrderUpdateEvent struct {
	Orders []domain.Order
	Ts     time.Time
}

func (*OrderUpdateEvent) Kind() string { return "order_update" }

// ExecutionEvent carries private fill notifications (account queue).
type ExecutionEvent struct {
	Fills []domain.TradeFill
}

func (*ExecutionEvent) Kind() string { return "execution" }

// PositionEvent carries a private position update (account queue).
// Size is signed: positive long, negative short.
type PositionEvent struct {
	Symbol string
	Size   decimal.Decimal
}

func (*PositionEvent) Kind() string { return "position" }

// WalletEvent carries a balance update from the private stream or the
// periodic REST health check (account queue).
type WalletEvent struct {
	Coin             string
	WalletBalance    decimal.Decimal
	AvailableBalance decimal.Decimal
}

func (*WalletEvent) Kind() string { return "wallet" }

// PlacementResultEvent reports the outcome of an asynchronous order
// submission executed on the gateway worker pool.
type PlacementResultEvent struct {
	Order domain.Order
	Err   error
}

func (*PlacementResultEvent) Kind() string { return "placement_result" }

// CancelResultEvent reports the outcome of an asynchronous cancel.
type CancelResultEvent struct {
	OrderID string
	Err     error
}

func (*CancelResultEvent) Kind() string { return "cancel_result" }

// StreamFatalEvent signals that a stream worker exhausted its reconnect
// budget. The engine treats it as fatal.
type StreamFatalEvent struct {
	Stream string
	Err    error
}

func (*StreamFatalEvent) Kind() string { return "stream_fatal" }
