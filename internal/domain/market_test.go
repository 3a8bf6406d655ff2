package domain

import "testing"

func TestMarketInfoRounding(t *testing.T) {
	info := MarketInfo{
		Symbol:    "BTCUSDT",
		PriceTick: d("0.5"),
		QtyStep:   d("0.001"),
	}

	if got := info.RoundPrice(d("50000.74")); !got.Equal(d("50000.5")) {
		t.Errorf("RoundPrice = %v, want 50000.5", got)
	}
	if got := info.RoundQty(d("0.12345")); !got.Equal(d("0.123")) {
		t.Errorf("RoundQty = %v, want 0.123", got)
	}

	// Zero increments pass values through untouched.
	var bare MarketInfo
	if got := bare.RoundPrice(d("1.23")); !got.Equal(d("1.23")) {
		t.Errorf("RoundPrice with zero tick = %v, want 1.23", got)
	}
}

func TestMarketInfoMeetsMinimums(t *testing.T) {
	info := MarketInfo{
		MinOrderQty: d("0.001"),
		MinNotional: d("5"),
	}

	if info.MeetsMinimums(d("50000"), d("0.0001")) {
		t.Error("below min qty must fail")
	}
	if info.MeetsMinimums(d("100"), d("0.01")) {
		t.Error("notional 1 below min 5 must fail")
	}
	if !info.MeetsMinimums(d("50000"), d("0.001")) {
		t.Error("qty and notional above minimums must pass")
	}
}

func TestOrderbookMid(t *testing.T) {
	book := Orderbook{
		Bids: []PriceLevel{{Price: d("99"), Qty: d("1")}},
		Asks: []PriceLevel{{Price: d("101"), Qty: d("2")}},
	}

	if !book.Mid().Equal(d("100")) {
		t.Errorf("Mid = %v, want 100", book.Mid())
	}

	onesided := Orderbook{Bids: []PriceLevel{{Price: d("99"), Qty: d("1")}}}
	if !onesided.Mid().IsZero() {
		t.Error("one-sided book has no mid")
	}
}
