package strategy

import (
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// FixedSpreadStrategy quotes a symmetric spread around the smoothed mid
// and leans the quote center against accumulated inventory: a long book
// shifts both quotes down to favor selling out, a short book shifts up.
type FixedSpreadStrategy struct {
	baseSpread    decimal.Decimal // fractional full spread
	orderQuantity decimal.Decimal
	inventorySkew decimal.Decimal // fractional shift per unit of inventory, in order quantities
}

// NewFixedSpread creates the strategy from its three parameters.
func NewFixedSpread(baseSpread, orderQuantity, inventorySkew decimal.Decimal) *FixedSpreadStrategy {
	return &FixedSpreadStrategy{
		baseSpread:    baseSpread,
		orderQuantity: orderQuantity,
		inventorySkew: inventorySkew,
	}
}

// TargetQuotes implements Strategy.
func (s *FixedSpreadStrategy) TargetQuotes(view MarketView) (Quotes, bool) {
	ref := view.SmoothedMid
	if !ref.IsPositive() || !s.orderQuantity.IsPositive() {
		return Quotes{}, false
	}

	// Linear inventory lean, measured in multiples of the order size.
	if !s.inventorySkew.IsZero() && !view.Position.IsZero() {
		lean := s.inventorySkew.Mul(view.Position.Div(s.orderQuantity))
		ref = ref.Mul(decimal.NewFromInt(1).Sub(lean))
		if !ref.IsPositive() {
			return Quotes{}, false
		}
	}

	half := s.baseSpread.Div(two)
	one := decimal.NewFromInt(1)
	bid := view.Info.RoundPrice(ref.Mul(one.Sub(half)))
	ask := roundPriceUp(ref.Mul(one.Add(half)), view.Info.PriceTick)

	// Rounding can collapse a thin spread onto one tick.
	if !view.Info.PriceTick.IsZero() && !bid.LessThan(ask) {
		ask = bid.Add(view.Info.PriceTick)
	}

	qty := view.Info.RoundQty(s.orderQuantity)
	if !view.Info.MeetsMinimums(bid, qty) || !view.Info.MeetsMinimums(ask, qty) {
		return Quotes{}, false
	}

	return Quotes{BidPrice: bid, BidQty: qty, AskPrice: ask, AskQty: qty}, true
}

// roundPriceUp rounds to the next tick away from the mid so an ask
// never rounds through the reference price.
func roundPriceUp(p, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return p
	}
	rem := p.Mod(tick)
	if rem.IsZero() {
		return p
	}
	return p.Sub(rem).Add(tick)
}
