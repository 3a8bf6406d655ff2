package service

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
)

// StateStore holds all mutable bot state behind scoped locks. Market
// data, order tracking and account state move at different cadences, so
// each region has its own RWMutex; a reader of one never blocks on the
// others.
type StateStore struct {
	symbol      string
	emaAlpha    decimal.Decimal
	historySize int

	marketMu    sync.RWMutex
	mid         decimal.Decimal
	smoothedMid decimal.Decimal
	history     []domain.PricePoint
	lastBook    domain.Orderbook

	ordersMu   sync.RWMutex
	active     map[string]domain.Order
	seenTrades map[string]struct{}
	seenOrder  []string // insertion order, oldest first, for eviction

	accountMu        sync.RWMutex
	balance          decimal.Decimal
	available        decimal.Decimal
	position         decimal.Decimal
	metrics          domain.TradeMetrics
	pausedUntil      time.Time
	cooldownUntil    time.Time
	halted           bool
	dailyBaseline    decimal.Decimal
	dailyBaselineDay string
}

// NewStateStore creates an empty store for one symbol.
func NewStateStore(symbol string, emaAlpha decimal.Decimal, historySize int) *StateStore {
	return &StateStore{
		symbol:      symbol,
		emaAlpha:    emaAlpha,
		historySize: historySize,
		active:      make(map[string]domain.Order),
		seenTrades:  make(map[string]struct{}),
	}
}

func (s *StateStore) Symbol() string { return s.symbol }

// --- market region ---

// UpdateBook ingests a new orderbook: recomputes the mid, advances the
// smoothed mid (seeded with the first observation) and records a price
// history point. Books without both sides leave the mid untouched.
func (s *StateStore) UpdateBook(book domain.Orderbook) {
	mid := book.Mid()
	s.marketMu.Lock()
	defer s.marketMu.Unlock()

	s.lastBook = book
	if mid.IsZero() {
		return
	}

	s.mid = mid
	if s.smoothedMid.IsZero() {
		s.smoothedMid = mid
	} else {
		s.smoothedMid = s.emaAlpha.Mul(mid).
			Add(decimal.NewFromInt(1).Sub(s.emaAlpha).Mul(s.smoothedMid))
	}

	s.history = append(s.history, domain.PricePoint{Ts: book.Ts, Price: mid})
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

// Mid returns the latest raw mid price.
func (s *StateStore) Mid() decimal.Decimal {
	s.marketMu.RLock()
	defer s.marketMu.RUnlock()
	return s.mid
}

// SmoothedMid returns the EMA-smoothed mid price.
func (s *StateStore) SmoothedMid() decimal.Decimal {
	s.marketMu.RLock()
	defer s.marketMu.RUnlock()
	return s.smoothedMid
}

// LastBook returns the most recent orderbook, zero-valued before first
// data arrives.
func (s *StateStore) LastBook() domain.Orderbook {
	s.marketMu.RLock()
	defer s.marketMu.RUnlock()
	return s.lastBook
}

// PriceRange returns the oldest and newest mid within the window ending
// at now. ok is false when the window holds fewer than two points.
func (s *StateStore) PriceRange(now time.Time, window time.Duration) (start, end decimal.Decimal, ok bool) {
	cutoff := now.Add(-window)

	s.marketMu.RLock()
	defer s.marketMu.RUnlock()

	var points []domain.PricePoint
	for i := range s.history {
		if !s.history[i].Ts.Before(cutoff) {
			points = s.history[i:]
			break
		}
	}
	if len(points) < 2 {
		return decimal.Zero, decimal.Zero, false
	}
	return points[0].Price, points[len(points)-1].Price, true
}

// --- orders region ---

// UpsertOrder inserts or replaces a tracked order keyed by exchange id.
func (s *StateStore) UpsertOrder(o domain.Order) {
	s.ordersMu.Lock()
	defer s.ordersMu.Unlock()
	s.active[o.ID] = o
}

// RemoveOrder drops an order from tracking.
func (s *StateStore) RemoveOrder(id string) {
	s.ordersMu.Lock()
	defer s.ordersMu.Unlock()
	delete(s.active, id)
}

// GetOrder looks up a tracked order by exchange id.
func (s *StateStore) GetOrder(id string) (domain.Order, bool) {
	s.ordersMu.RLock()
	defer s.ordersMu.RUnlock()
	o, ok := s.active[id]
	return o, ok
}

// ActiveOrders returns a copy of all tracked orders.
func (s *StateStore) ActiveOrders() []domain.Order {
	s.ordersMu.RLock()
	defer s.ordersMu.RUnlock()

	out := make([]domain.Order, 0, len(s.active))
	for _, o := range s.active {
		out = append(out, o)
	}
	return out
}

// ReplaceOrders swaps the full tracked set, used by startup reconciliation.
func (s *StateStore) ReplaceOrders(orders []domain.Order) {
	s.ordersMu.Lock()
	defer s.ordersMu.Unlock()

	s.active = make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		s.active[o.ID] = o
	}
}

// seenTradeLimit caps the dedupe set. Venue replays arrive close to the
// original execution; ids older than the last few thousand fills cannot
// recur.
const seenTradeLimit = 10000

// MarkTradeSeen records a trade id and reports whether it was new.
// Duplicate executions replayed by the venue must not move metrics twice.
// The set is bounded: once full, the oldest id is evicted.
func (s *StateStore) MarkTradeSeen(tradeID string) bool {
	s.ordersMu.Lock()
	defer s.ordersMu.Unlock()

	if _, dup := s.seenTrades[tradeID]; dup {
		return false
	}
	s.seenTrades[tradeID] = struct{}{}
	s.seenOrder = append(s.seenOrder, tradeID)
	if len(s.seenOrder) > seenTradeLimit {
		delete(s.seenTrades, s.seenOrder[0])
		s.seenOrder = s.seenOrder[1:]
	}
	return true
}

// --- account region ---

func (s *StateStore) SetBalance(wallet, available decimal.Decimal) {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	s.balance = wallet
	s.available = available
}

func (s *StateStore) Balance() (wallet, available decimal.Decimal) {
	s.accountMu.RLock()
	defer s.accountMu.RUnlock()
	return s.balance, s.available
}

func (s *StateStore) SetPosition(size decimal.Decimal) {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	s.position = size
}

// Position returns the signed position size: positive long, negative short.
func (s *StateStore) Position() decimal.Decimal {
	s.accountMu.RLock()
	defer s.accountMu.RUnlock()
	return s.position
}

// ApplyFill folds a fill into the trade metrics and local position,
// returning the realized PnL impact.
func (s *StateStore) ApplyFill(side domain.Side, price, qty, fee decimal.Decimal) decimal.Decimal {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()

	realized := s.metrics.ApplyFill(side, price, qty, fee)
	if side == domain.SideBuy {
		s.position = s.position.Add(qty)
	} else {
		s.position = s.position.Sub(qty)
	}
	return realized
}

// Metrics returns a copy of the current trade metrics.
func (s *StateStore) Metrics() domain.TradeMetrics {
	s.accountMu.RLock()
	defer s.accountMu.RUnlock()
	return s.metrics
}

// PauseUntil suspends quoting until the given time.
func (s *StateStore) PauseUntil(until time.Time) {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	s.pausedUntil = until
}

// CooldownUntil extends the post-pause cooldown window.
func (s *StateStore) CooldownUntil(until time.Time) {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	s.cooldownUntil = until
}

// QuietPeriods returns the current pause and cooldown deadlines.
func (s *StateStore) QuietPeriods() (paused, cooldown time.Time) {
	s.accountMu.RLock()
	defer s.accountMu.RUnlock()
	return s.pausedUntil, s.cooldownUntil
}

// Halt permanently stops quoting for the rest of the run. The flag is
// memory-only and never persisted: a restart is the way back.
func (s *StateStore) Halt() {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	s.halted = true
}

func (s *StateStore) IsHalted() bool {
	s.accountMu.RLock()
	defer s.accountMu.RUnlock()
	return s.halted
}

// SetDailyBaseline records the capital baseline for the given UTC day.
func (s *StateStore) SetDailyBaseline(day string, capital decimal.Decimal) {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	s.dailyBaselineDay = day
	s.dailyBaseline = capital
}

func (s *StateStore) DailyBaseline() (day string, capital decimal.Decimal) {
	s.accountMu.RLock()
	defer s.accountMu.RUnlock()
	return s.dailyBaselineDay, s.dailyBaseline
}

// --- persistence ---

// ExportSnapshot captures the full persistent state in one pass.
func (s *StateStore) ExportSnapshot() *domain.StateSnapshot {
	snap := &domain.StateSnapshot{Symbol: s.symbol}

	s.marketMu.RLock()
	snap.MidPrice = s.mid
	snap.SmoothedMidPrice = s.smoothedMid
	snap.PriceHistory = append([]domain.PricePoint(nil), s.history...)
	s.marketMu.RUnlock()

	s.ordersMu.RLock()
	snap.ActiveOrders = make([]domain.Order, 0, len(s.active))
	for _, o := range s.active {
		snap.ActiveOrders = append(snap.ActiveOrders, o)
	}
	snap.SeenTradeIDs = append([]string(nil), s.seenOrder...)
	s.ordersMu.RUnlock()

	s.accountMu.RLock()
	snap.Metrics = s.metrics
	snap.Balance = s.balance
	snap.AvailableBalance = s.available
	snap.PositionQty = s.position
	snap.PausedUntil = s.pausedUntil
	snap.CooldownUntil = s.cooldownUntil
	snap.DailyBaselineCapital = s.dailyBaseline
	snap.DailyBaselineDate = s.dailyBaselineDay
	s.accountMu.RUnlock()

	return snap
}

// RestoreSnapshot loads persisted state back into the store.
func (s *StateStore) RestoreSnapshot(snap *domain.StateSnapshot) {
	s.marketMu.Lock()
	s.mid = snap.MidPrice
	s.smoothedMid = snap.SmoothedMidPrice
	s.history = append([]domain.PricePoint(nil), snap.PriceHistory...)
	s.marketMu.Unlock()

	s.ordersMu.Lock()
	s.active = make(map[string]domain.Order, len(snap.ActiveOrders))
	for _, o := range snap.ActiveOrders {
		s.active[o.ID] = o
	}
	ids := snap.SeenTradeIDs
	if len(ids) > seenTradeLimit {
		ids = ids[len(ids)-seenTradeLimit:]
	}
	s.seenTrades = make(map[string]struct{}, len(ids))
	s.seenOrder = append([]string(nil), ids...)
	for _, id := range ids {
		s.seenTrades[id] = struct{}{}
	}
	s.ordersMu.Unlock()

	s.accountMu.Lock()
	s.metrics = snap.Metrics
	s.balance = snap.Balance
	s.available = snap.AvailableBalance
	s.position = snap.PositionQty
	s.pausedUntil = snap.PausedUntil
	s.cooldownUntil = snap.CooldownUntil
	s.dailyBaseline = snap.DailyBaselineCapital
	s.dailyBaselineDay = snap.DailyBaselineDate
	s.accountMu.Unlock()
}
