package service

import (
	"strconv"
	"testing"
	"time"

	"maker_go/internal/domain"
)

func TestUpdateBookSeedsAndSmoothsEMA(t *testing.T) {
	store := newTestStore()
	now := time.Now()

	store.UpdateBook(bookAt(now, "99", "101"))
	if !store.Mid().Equal(d("100")) {
		t.Errorf("mid = %v, want 100", store.Mid())
	}
	// First observation seeds the EMA directly.
	if !store.SmoothedMid().Equal(d("100")) {
		t.Errorf("smoothed = %v, want seed 100", store.SmoothedMid())
	}

	// 0.2*110 + 0.8*100 = 102
	store.UpdateBook(bookAt(now.Add(time.Second), "109", "111"))
	if !store.SmoothedMid().Equal(d("102")) {
		t.Errorf("smoothed = %v, want 102", store.SmoothedMid())
	}

	// 0.2*105 + 0.8*102 = 102.6
	store.UpdateBook(bookAt(now.Add(2*time.Second), "104", "106"))
	if !store.SmoothedMid().Equal(d("102.6")) {
		t.Errorf("smoothed = %v, want 102.6", store.SmoothedMid())
	}
}

func TestUpdateBookOneSidedKeepsMid(t *testing.T) {
	store := newTestStore()
	now := time.Now()
	store.UpdateBook(bookAt(now, "99", "101"))

	oneSided := domain.Orderbook{
		Bids: []domain.PriceLevel{{Price: d("98"), Qty: d("1")}},
		Ts:   now.Add(time.Second),
	}
	store.UpdateBook(oneSided)

	if !store.Mid().Equal(d("100")) {
		t.Errorf("one-sided book must not move the mid, got %v", store.Mid())
	}
	if !store.LastBook().Ts.Equal(oneSided.Ts) {
		t.Error("last book should still advance")
	}
}

func TestPriceHistoryBounded(t *testing.T) {
	store := NewStateStore("BTCUSDT", d("0.2"), 5)
	now := time.Now()
	for i := 0; i < 20; i++ {
		store.UpdateBook(bookAt(now.Add(time.Duration(i)*time.Second), "99", "101"))
	}

	start, end, ok := store.PriceRange(now.Add(20*time.Second), time.Hour)
	if !ok {
		t.Fatal("expected a populated window")
	}
	if !start.Equal(d("100")) || !end.Equal(d("100")) {
		t.Errorf("range = %v..%v", start, end)
	}

	snap := store.ExportSnapshot()
	if len(snap.PriceHistory) != 5 {
		t.Errorf("history length = %d, want bounded to 5", len(snap.PriceHistory))
	}
}

func TestPriceRangeWindowing(t *testing.T) {
	store := newTestStore()
	base := time.Now()

	store.UpdateBook(bookAt(base, "99", "101"))                      // mid 100, outside window
	store.UpdateBook(bookAt(base.Add(30*time.Second), "109", "111")) // mid 110
	store.UpdateBook(bookAt(base.Add(35*time.Second), "119", "121")) // mid 120

	now := base.Add(40 * time.Second)
	start, end, ok := store.PriceRange(now, 15*time.Second)
	if !ok {
		t.Fatal("expected two points inside the window")
	}
	if !start.Equal(d("110")) || !end.Equal(d("120")) {
		t.Errorf("range = %v..%v, want 110..120", start, end)
	}

	if _, _, ok := store.PriceRange(now, time.Second); ok {
		t.Error("a window with fewer than two points reports not ok")
	}
}

func TestApplyFillMovesPosition(t *testing.T) {
	store := newTestStore()

	store.ApplyFill(domain.SideBuy, d("100"), d("2"), d("0.01"))
	if !store.Position().Equal(d("2")) {
		t.Errorf("position = %v, want 2", store.Position())
	}

	realized := store.ApplyFill(domain.SideSell, d("110"), d("2"), d("0.01"))
	if !store.Position().IsZero() {
		t.Errorf("position = %v, want flat", store.Position())
	}
	if !realized.Equal(d("20")) {
		t.Errorf("realized = %v, want 20", realized)
	}
}

func TestMarkTradeSeenIdempotent(t *testing.T) {
	store := newTestStore()
	if !store.MarkTradeSeen("t1") {
		t.Error("first sighting is new")
	}
	if store.MarkTradeSeen("t1") {
		t.Error("second sighting is a duplicate")
	}
	if !store.MarkTradeSeen("t2") {
		t.Error("different id is new")
	}
}

func TestSeenTradesBounded(t *testing.T) {
	store := newTestStore()

	for i := 0; i <= seenTradeLimit; i++ {
		store.MarkTradeSeen("t" + strconv.Itoa(i))
	}

	// The oldest id was evicted, so the venue replaying it registers as
	// new again; the newest stays deduplicated.
	if !store.MarkTradeSeen("t0") {
		t.Error("oldest id must be evicted once the set is full")
	}
	if store.MarkTradeSeen("t" + strconv.Itoa(seenTradeLimit)) {
		t.Error("newest id must still deduplicate")
	}

	snap := store.ExportSnapshot()
	if len(snap.SeenTradeIDs) > seenTradeLimit {
		t.Errorf("snapshot carries %d trade ids, limit is %d", len(snap.SeenTradeIDs), seenTradeLimit)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore()
	now := time.Now()

	store.UpdateBook(bookAt(now, "99", "101"))
	store.UpsertOrder(domain.Order{
		ID: "o1", ClientID: "mm_BTCUSDT_Buy_aaaa", Symbol: "BTCUSDT",
		Side: domain.SideBuy, Price: d("99.5"), Qty: d("0.1"),
		Status: domain.OrderStatusNew, CreatedAt: now,
	})
	store.MarkTradeSeen("t1")
	store.SetBalance(d("10000"), d("9500"))
	store.ApplyFill(domain.SideBuy, d("100"), d("0.1"), d("0.001"))
	store.SetDailyBaseline("2026-08-29", d("10000"))
	store.PauseUntil(now.Add(time.Minute))
	store.Halt()

	restored := newTestStore()
	restored.RestoreSnapshot(store.ExportSnapshot())

	if !restored.Mid().Equal(d("100")) || !restored.SmoothedMid().Equal(d("100")) {
		t.Error("market state did not survive the round trip")
	}
	if _, ok := restored.GetOrder("o1"); !ok {
		t.Error("active order did not survive the round trip")
	}
	if restored.MarkTradeSeen("t1") {
		t.Error("seen trade ids did not survive the round trip")
	}
	wallet, avail := restored.Balance()
	if !wallet.Equal(d("10000")) || !avail.Equal(d("9500")) {
		t.Errorf("balance = %v/%v", wallet, avail)
	}
	if !restored.Position().Equal(d("0.1")) {
		t.Errorf("position = %v, want 0.1", restored.Position())
	}
	if restored.IsHalted() {
		t.Error("the halt flag is memory-only, a restarted process must be able to trade again")
	}
	day, baseline := restored.DailyBaseline()
	if day != "2026-08-29" || !baseline.Equal(d("10000")) {
		t.Errorf("baseline = %s/%v", day, baseline)
	}
}
