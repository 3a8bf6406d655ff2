package domain

import (
	"strings"
	"testing"
)

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{
		OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected,
		OrderStatusDeactivated, OrderStatusExpired,
	}
	open := []OrderStatus{OrderStatusNew, OrderStatusPartiallyFilled}

	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusNew, OrderStatusPartiallyFilled, true},
		{OrderStatusNew, OrderStatusFilled, true},
		{OrderStatusNew, OrderStatusCancelled, true},
		{OrderStatusNew, OrderStatusRejected, true},
		{OrderStatusPartiallyFilled, OrderStatusFilled, true},
		{OrderStatusPartiallyFilled, OrderStatusCancelled, true},
		{OrderStatusPartiallyFilled, OrderStatusNew, false},
		{OrderStatusFilled, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusNew, false},
		{OrderStatusRejected, OrderStatusFilled, false},
		{OrderStatusExpired, OrderStatusPartiallyFilled, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestOrderIsOpen(t *testing.T) {
	o := Order{Status: OrderStatusNew}
	if !o.IsOpen() {
		t.Error("New orders are open")
	}
	o.Status = OrderStatusFilled
	if o.IsOpen() {
		t.Error("Filled orders are not open")
	}
}

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Error("Opposite must swap sides")
	}
}

func TestNewClientOrderID(t *testing.T) {
	a := NewClientOrderID("BTCUSDT", SideBuy)
	b := NewClientOrderID("BTCUSDT", SideBuy)

	if !strings.HasPrefix(a, "mm_BTCUSDT_Buy_") {
		t.Errorf("unexpected prefix: %s", a)
	}
	if a == b {
		t.Error("client order ids must be unique")
	}
}
