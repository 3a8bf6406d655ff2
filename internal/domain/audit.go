package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderEventRecord is one row of the order-event audit table.
type OrderEventRecord struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Timestamp  time.Time       `gorm:"index" json:"timestamp"`
	Symbol     string          `gorm:"index" json:"symbol"`
	OrderID    string          `gorm:"index" json:"order_id"`
	ClientID   string          `json:"client_id"`
	Side       string          `json:"side"`
	OrderType  string          `json:"order_type"`
	Price      decimal.Decimal `gorm:"type:text" json:"price"`
	Qty        decimal.Decimal `gorm:"type:text" json:"qty"`
	CumExecQty decimal.Decimal `gorm:"type:text" json:"cum_exec_qty"`
	Status     string          `json:"status"`
	ReduceOnly bool            `json:"reduce_only"`
	Message    string          `json:"message"`
}

func (OrderEventRecord) TableName() string { return "order_events" }

// TradeFillRecord is one row of the fill audit table.
type TradeFillRecord struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Timestamp         time.Time       `gorm:"index" json:"timestamp"`
	Symbol            string          `gorm:"index" json:"symbol"`
	OrderID           string          `gorm:"index" json:"order_id"`
	TradeID           string          `gorm:"uniqueIndex" json:"trade_id"`
	Side              string          `json:"side"`
	ExecPrice         decimal.Decimal `gorm:"type:text" json:"exec_price"`
	ExecQty           decimal.Decimal `gorm:"type:text" json:"exec_qty"`
	Fee               decimal.Decimal `gorm:"type:text" json:"fee"`
	FeeCurrency       string          `json:"fee_currency"`
	RealizedPnLImpact decimal.Decimal `gorm:"type:text" json:"realized_pnl_impact"`
	LiquidityRole     string          `json:"liquidity_role"`
}

func (TradeFillRecord) TableName() string { return "trade_fills" }

// BalanceUpdateRecord is one row of the balance audit table.
type BalanceUpdateRecord struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Timestamp        time.Time       `gorm:"index" json:"timestamp"`
	Currency         string          `json:"currency"`
	WalletBalance    decimal.Decimal `gorm:"type:text" json:"wallet_balance"`
	AvailableBalance decimal.Decimal `gorm:"type:text" json:"available_balance"`
}

func (BalanceUpdateRecord) TableName() string { return "balance_updates" }

// BotMetricsRecord is one periodic snapshot row of engine performance.
type BotMetricsRecord struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Timestamp       time.Time       `gorm:"index" json:"timestamp"`
	Symbol          string          `gorm:"index" json:"symbol"`
	TotalTrades     int64           `json:"total_trades"`
	NetRealizedPnL  decimal.Decimal `gorm:"type:text" json:"net_realized_pnl"`
	RealizedPnL     decimal.Decimal `gorm:"type:text" json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal `gorm:"type:text" json:"unrealized_pnl"`
	GrossProfit     decimal.Decimal `gorm:"type:text" json:"gross_profit"`
	GrossLoss       decimal.Decimal `gorm:"type:text" json:"gross_loss"`
	TotalFees       decimal.Decimal `gorm:"type:text" json:"total_fees"`
	Wins            int64           `json:"wins"`
	Losses          int64           `json:"losses"`
	WinRate         decimal.Decimal `gorm:"type:text" json:"win_rate"`
	CurrentHoldings decimal.Decimal `gorm:"type:text" json:"current_holdings"`
	AvgEntryPrice   decimal.Decimal `gorm:"type:text" json:"avg_entry_price"`
	DailyPnL        decimal.Decimal `gorm:"type:text" json:"daily_pnl"`
	DailyLossPct    decimal.Decimal `gorm:"type:text" json:"daily_loss_pct"`
	MidPrice        decimal.Decimal `gorm:"type:text" json:"mid_price"`
}

func (BotMetricsRecord) TableName() string { return "bot_metrics" }
