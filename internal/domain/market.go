package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketInfo is immutable per-symbol venue metadata, fetched once at
// startup. Every price and quantity is rounded through it before
// submission.
type MarketInfo struct {
	Symbol       string          `json:"symbol"`
	PriceTick    decimal.Decimal `json:"price_tick"`
	QtyStep      decimal.Decimal `json:"qty_step"`
	MinOrderQty  decimal.Decimal `json:"min_order_qty"`
	MinNotional  decimal.Decimal `json:"min_notional"`
	MakerFeeRate decimal.Decimal `json:"maker_fee_rate"`
	TakerFeeRate decimal.Decimal `json:"taker_fee_rate"`
}

// RoundPrice quantizes p down to the venue price tick.
func (m MarketInfo) RoundPrice(p decimal.Decimal) decimal.Decimal {
	if m.PriceTick.IsZero() {
		return p
	}
	return p.Sub(p.Mod(m.PriceTick))
}

// RoundQty quantizes q down to the venue quantity step.
func (m MarketInfo) RoundQty(q decimal.Decimal) decimal.Decimal {
	if m.QtyStep.IsZero() {
		return q
	}
	return q.Sub(q.Mod(m.QtyStep))
}

// MeetsMinimums checks venue minimum quantity and notional value.
func (m MarketInfo) MeetsMinimums(price, qty decimal.Decimal) bool {
	if qty.LessThan(m.MinOrderQty) {
		return false
	}
	if !m.MinNotional.IsZero() && qty.Mul(price).LessThan(m.MinNotional) {
		return false
	}
	return true
}

// PriceLevel is one side level of the order book.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// Orderbook is a top-of-book view from the public stream.
// Bids are sorted descending, asks ascending.
type Orderbook struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
	Ts     time.Time    `json:"ts"`
}

// BestBid returns the highest bid, zero when the side is empty.
func (b Orderbook) BestBid() decimal.Decimal {
	if len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask, zero when the side is empty.
func (b Orderbook) BestAsk() decimal.Decimal {
	if len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price
}

// Mid is the average of best bid and best ask, zero if either side is
// missing.
func (b Orderbook) Mid() decimal.Decimal {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid.IsZero() || ask.IsZero() {
		return decimal.Zero
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2))
}

// PricePoint is one sample of the bounded mid-price history used by the
// volatility breaker.
type PricePoint struct {
	Ts    time.Time       `json:"ts"`
	Price decimal.Decimal `json:"price"`
}
