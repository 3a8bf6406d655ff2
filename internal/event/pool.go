package event

import (
	"sync"

	"maker_go/internal/domain"
)

// Orderbook events dominate queue traffic by orders of magnitude, so
// they are pooled to reduce GC pressure in the hotpath.
//
// Usage:
//
//	ev := AcquireOrderbookEvent()
//	ev.Book = book
//	// ... enqueue, process ...
//	ReleaseOrderbookEvent(ev) // return to pool after processing
var orderbookPool = sync.Pool{
	New: func() interface{} {
		return &OrderbookEvent{}
	},
}

// AcquireOrderbookEvent gets an OrderbookEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireOrderbookEvent() *OrderbookEvent {
	return orderbookPool.Get().(*OrderbookEvent)
}

// ReleaseOrderbookEvent returns an OrderbookEvent to the pool.
// The event is reset to zero values before being pooled.
func ReleaseOrderbookEvent(ev *OrderbookEvent) {
	if ev == nil {
		return
	}
	ev.Book = domain.Orderbook{}

	orderbookPool.Put(ev)
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	evs := make([]*OrderbookEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireOrderbookEvent())
	}
	for _, ev := range evs {
		ReleaseOrderbookEvent(ev)
	}
}
