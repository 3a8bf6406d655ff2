package domain

import "github.com/shopspring/decimal"

// TradeMetrics tracks position cost basis and realized performance.
// Holdings are signed: positive long, negative short. AvgEntryPrice is
// meaningful only while Holdings != 0 and resets to zero when flat.
type TradeMetrics struct {
	Holdings      decimal.Decimal `json:"holdings"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	GrossProfit   decimal.Decimal `json:"gross_profit"`
	GrossLoss     decimal.Decimal `json:"gross_loss"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	Wins          int64           `json:"wins"`
	Losses        int64           `json:"losses"`
	TotalTrades   int64           `json:"total_trades"`
}

// ApplyFill updates cost basis and realized PnL for one execution and
// returns the realized PnL impact of this fill (zero for pure entries).
//
// Fills in the direction of the position blend the average entry price
// by size. Fills against the position realize (price - avg) * closedQty
// on the closed portion; if the fill is larger than the position, the
// remainder opens a new position at the fill price (cost basis re-bases).
func (m *TradeMetrics) ApplyFill(side Side, price, qty, fee decimal.Decimal) decimal.Decimal {
	signed := qty
	if side == SideSell {
		signed = qty.Neg()
	}

	realized := decimal.Zero

	switch {
	case m.Holdings.IsZero() || m.Holdings.Sign() == signed.Sign():
		// Entry or add: size-weighted average.
		newHoldings := m.Holdings.Add(signed)
		notional := m.AvgEntryPrice.Mul(m.Holdings.Abs()).Add(price.Mul(qty))
		m.AvgEntryPrice = notional.Div(newHoldings.Abs())
		m.Holdings = newHoldings

	default:
		// Reduce, close, or flip.
		closeQty := decimal.Min(qty, m.Holdings.Abs())
		diff := price.Sub(m.AvgEntryPrice)
		if m.Holdings.Sign() < 0 {
			diff = diff.Neg()
		}
		realized = diff.Mul(closeQty)
		m.RealizedPnL = m.RealizedPnL.Add(realized)
		m.Holdings = m.Holdings.Add(signed)

		if m.Holdings.IsZero() {
			m.AvgEntryPrice = decimal.Zero
		} else if m.Holdings.Sign() == signed.Sign() {
			// Flipped through zero: remainder re-bases at the fill price.
			m.AvgEntryPrice = price
		}

		if realized.IsPositive() {
			m.GrossProfit = m.GrossProfit.Add(realized)
			m.Wins++
		} else if realized.IsNegative() {
			m.GrossLoss = m.GrossLoss.Add(realized.Abs())
			m.Losses++
		}
	}

	m.TotalTrades++
	m.TotalFees = m.TotalFees.Add(fee)
	return realized
}

// UnrealizedPnL marks the open position against the given price.
func (m *TradeMetrics) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	if m.Holdings.IsZero() || mark.IsZero() {
		return decimal.Zero
	}
	return mark.Sub(m.AvgEntryPrice).Mul(m.Holdings)
}

// NetRealizedPnL is realized PnL minus accumulated fees.
func (m *TradeMetrics) NetRealizedPnL() decimal.Decimal {
	return m.RealizedPnL.Sub(m.TotalFees)
}

// WinRate returns wins/(wins+losses) as a percentage, zero when no
// position has been closed yet.
func (m *TradeMetrics) WinRate() decimal.Decimal {
	closed := m.Wins + m.Losses
	if closed == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(m.Wins).
		Div(decimal.NewFromInt(closed)).
		Mul(decimal.NewFromInt(100))
}
