package strategy

import (
	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
)

// MarketView is the read-only state handed to the strategy each quote
// cycle.
type MarketView struct {
	Mid         decimal.Decimal
	SmoothedMid decimal.Decimal
	Position    decimal.Decimal // signed, positive long
	Book        domain.Orderbook
	Info        domain.MarketInfo
}

// Quotes is the desired two-sided quote. Prices are already rounded to
// the instrument's tick and quantities to its step.
type Quotes struct {
	BidPrice decimal.Decimal
	BidQty   decimal.Decimal
	AskPrice decimal.Decimal
	AskQty   decimal.Decimal
}

// Strategy computes the desired quotes from the current market view.
// It is called synchronously by the engine loop and must not block.
type Strategy interface {
	// TargetQuotes returns the quotes to hold in the book, or ok=false
	// when the view is not quotable (no price yet, sub-minimum sizes).
	TargetQuotes(view MarketView) (Quotes, bool)
}
