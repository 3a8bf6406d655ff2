package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the order direction using exchange wire values.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the exchange-reported order lifecycle state.
// Transitions are forward-only: a terminal state is never left.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
	OrderStatusDeactivated     OrderStatus = "Deactivated"
	OrderStatusExpired         OrderStatus = "Expired"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected,
		OrderStatusDeactivated, OrderStatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal
// forward transition of the order state machine.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if s == OrderStatusPartiallyFilled && next == OrderStatusNew {
		return false
	}
	return true
}

const (
	OrderTypeLimit  = "Limit"
	OrderTypeMarket = "Market"

	TimeInForcePostOnly = "PostOnly"
)

// Order is the local mirror of an exchange order.
// Monetary values are strictly decimal. Mutation happens only through
// exchange-originated events (see the order lifecycle manager).
type Order struct {
	ID         string          `json:"id"`        // exchange-assigned
	ClientID   string          `json:"client_id"` // locally generated, idempotency key
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Qty        decimal.Decimal `json:"qty"`
	CumExecQty decimal.Decimal `json:"cum_exec_qty"`
	Status     OrderStatus     `json:"status"`
	ReduceOnly bool            `json:"reduce_only"`
	CreatedAt  time.Time       `json:"created_at"`
}

// IsOpen checks if the order is still working on the venue.
func (o *Order) IsOpen() bool {
	return !o.Status.IsTerminal()
}

// OrderRequest carries the parameters of a new order submission.
type OrderRequest struct {
	Symbol      string
	Side        Side
	OrderType   string
	Qty         decimal.Decimal
	Price       decimal.Decimal
	TimeInForce string
	ClientID    string
	ReduceOnly  bool
}

// NewClientOrderID generates a unique client order id. The symbol/side
// prefix keeps orders attributable in exchange logs; the uuid suffix
// guarantees uniqueness across restarts.
func NewClientOrderID(symbol string, side Side) string {
	return "mm_" + symbol + "_" + string(side) + "_" + uuid.NewString()[:8]
}
