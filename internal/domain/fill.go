package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LiquidityRole tells whether a fill added or removed liquidity.
type LiquidityRole string

const (
	RoleMaker LiquidityRole = "Maker"
	RoleTaker LiquidityRole = "Taker"
)

// TradeFill is an immutable execution record. Append-only; never mutated.
type TradeFill struct {
	OrderID           string          `json:"order_id"`
	TradeID           string          `json:"trade_id"`
	Symbol            string          `json:"symbol"`
	Side              Side            `json:"side"`
	ExecPrice         decimal.Decimal `json:"exec_price"`
	ExecQty           decimal.Decimal `json:"exec_qty"`
	Fee               decimal.Decimal `json:"fee"`
	FeeCurrency       string          `json:"fee_currency"`
	Role              LiquidityRole   `json:"liquidity_role"`
	RealizedPnLImpact decimal.Decimal `json:"realized_pnl_impact"`
	Timestamp         time.Time       `json:"timestamp"`
}
