package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotVersion is the current snapshot schema version. Loaders
// reject snapshots with any other version instead of coercing fields.
const SnapshotVersion = 1

// StateSnapshot is the serialized form of the trading state written on
// shutdown and restored on startup. Decimals round-trip as strings, so
// no precision is lost.
type StateSnapshot struct {
	Version              int             `json:"version"`
	Symbol               string          `json:"symbol"`
	SavedAt              time.Time       `json:"saved_at"`
	ActiveOrders         []Order         `json:"active_orders"`
	Metrics              TradeMetrics    `json:"metrics"`
	Balance              decimal.Decimal `json:"balance"`
	AvailableBalance     decimal.Decimal `json:"available_balance"`
	PositionQty          decimal.Decimal `json:"position_qty"`
	MidPrice             decimal.Decimal `json:"mid_price"`
	SmoothedMidPrice     decimal.Decimal `json:"smoothed_mid_price"`
	PriceHistory         []PricePoint    `json:"price_history"`
	PausedUntil          time.Time       `json:"paused_until"`
	CooldownUntil        time.Time       `json:"cooldown_until"`
	DailyBaselineCapital decimal.Decimal `json:"daily_baseline_capital"`
	DailyBaselineDate    string          `json:"daily_baseline_date"`
	SeenTradeIDs         []string        `json:"seen_trade_ids"`
}
