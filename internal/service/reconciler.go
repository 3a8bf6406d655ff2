package service

import (
	"context"
	"log/slog"

	"maker_go/internal/domain"
)

// Reconciler aligns locally tracked orders with the venue's view at
// startup. The venue is the source of truth: local-only orders are
// dropped, venue-only orders are adopted, and shared orders take the
// venue's status and executed quantity.
type Reconciler struct {
	store   *StateStore
	gateway domain.ExchangeGateway
	logger  *slog.Logger
}

// NewReconciler creates a reconciler over the given store and gateway.
func NewReconciler(store *StateStore, gateway domain.ExchangeGateway) *Reconciler {
	return &Reconciler{
		store:   store,
		gateway: gateway,
		logger:  slog.Default().With("module", "reconciler"),
	}
}

// Reconcile fetches the venue's open orders and rebuilds local tracking
// from them. Returns the number of dropped and adopted orders.
func (r *Reconciler) Reconcile(ctx context.Context) (dropped, adopted int, err error) {
	symbol := r.store.Symbol()

	venueOrders, err := r.gateway.GetOpenOrders(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}

	local := make(map[string]domain.Order)
	for _, o := range r.store.ActiveOrders() {
		local[o.ID] = o
	}
	venue := make(map[string]domain.Order, len(venueOrders))
	for _, o := range venueOrders {
		venue[o.ID] = o
	}

	final := make([]domain.Order, 0, len(venue))
	for id, vo := range venue {
		lo, tracked := local[id]
		if !tracked {
			r.logger.Warn("adopting order found on venue",
				slog.String("order_id", id),
				slog.String("client_id", vo.ClientID),
				slog.String("status", string(vo.Status)))
			adopted++
			final = append(final, vo)
			continue
		}

		// Keep local bookkeeping fields; the venue decides the rest.
		merged := lo
		merged.Status = vo.Status
		merged.CumExecQty = vo.CumExecQty
		merged.Price = vo.Price
		merged.Qty = vo.Qty
		final = append(final, merged)
	}

	for id, lo := range local {
		if _, onVenue := venue[id]; !onVenue {
			r.logger.Warn("dropping order unknown to venue",
				slog.String("order_id", id),
				slog.String("client_id", lo.ClientID),
				slog.String("status", string(lo.Status)))
			dropped++
		}
	}

	r.store.ReplaceOrders(final)
	r.logger.Info("Reconciliation complete",
		slog.String("symbol", symbol),
		slog.Int("tracked", len(final)),
		slog.Int("dropped", dropped),
		slog.Int("adopted", adopted))
	return dropped, adopted, nil
}
