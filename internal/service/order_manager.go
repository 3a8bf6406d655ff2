package service

import (
	"log/slog"
	"time"

	"maker_go/internal/domain"
	"maker_go/internal/infra"
)

// OrderManager folds order and execution stream updates into the state
// store. Updates may arrive out of order or duplicated; the manager
// enforces forward-only status transitions and per-trade idempotence.
type OrderManager struct {
	store   *StateStore
	audit   domain.AuditLogger
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewOrderManager creates a new order manager.
func NewOrderManager(store *StateStore, audit domain.AuditLogger, metrics *infra.Metrics) *OrderManager {
	return &OrderManager{
		store:   store,
		audit:   audit,
		metrics: metrics,
		logger:  slog.Default().With("module", "order_manager"),
	}
}

// ApplyOrderUpdate processes a batch of order stream updates.
func (m *OrderManager) ApplyOrderUpdate(orders []domain.Order) {
	for _, incoming := range orders {
		if incoming.Symbol != m.store.Symbol() {
			continue
		}
		m.applyOne(incoming)
	}
}

func (m *OrderManager) applyOne(incoming domain.Order) {
	existing, tracked := m.store.GetOrder(incoming.ID)

	if !tracked {
		if incoming.Status.IsTerminal() {
			// Nothing to do for an order we never knew that is already done.
			m.auditOrder(incoming, "terminal update for untracked order")
			return
		}
		m.logger.Warn("adopting untracked order",
			slog.String("order_id", incoming.ID),
			slog.String("client_id", incoming.ClientID),
			slog.String("status", string(incoming.Status)))
		m.store.UpsertOrder(incoming)
		m.auditOrder(incoming, "adopted")
		return
	}

	if existing.Status != incoming.Status && !existing.Status.CanTransition(incoming.Status) {
		m.logger.Debug("ignoring stale order update",
			slog.String("order_id", incoming.ID),
			slog.String("current", string(existing.Status)),
			slog.String("incoming", string(incoming.Status)))
		return
	}

	merged := existing
	merged.Status = incoming.Status
	// Executed quantity only ever grows, and never past the order size.
	if incoming.CumExecQty.GreaterThan(merged.CumExecQty) {
		merged.CumExecQty = incoming.CumExecQty
	}
	if merged.CumExecQty.GreaterThan(merged.Qty) && merged.Qty.IsPositive() {
		merged.CumExecQty = merged.Qty
	}
	if merged.ClientID == "" {
		merged.ClientID = incoming.ClientID
	}

	if merged.Status.IsTerminal() {
		m.store.RemoveOrder(merged.ID)
	} else {
		m.store.UpsertOrder(merged)
	}
	m.auditOrder(merged, "")
}

// ApplyExecution processes a batch of fills. Duplicate trade ids are
// dropped; each new fill moves position and PnL metrics exactly once.
func (m *OrderManager) ApplyExecution(fills []domain.TradeFill) {
	for _, fill := range fills {
		if fill.Symbol != m.store.Symbol() {
			continue
		}
		if !m.store.MarkTradeSeen(fill.TradeID) {
			m.logger.Debug("duplicate execution dropped", slog.String("trade_id", fill.TradeID))
			continue
		}

		realized := m.store.ApplyFill(fill.Side, fill.ExecPrice, fill.ExecQty, fill.Fee)
		fill.RealizedPnLImpact = realized

		if m.metrics != nil {
			m.metrics.RecordFill()
		}
		m.logger.Info("Fill applied",
			slog.String("trade_id", fill.TradeID),
			slog.String("side", string(fill.Side)),
			slog.String("price", fill.ExecPrice.String()),
			slog.String("qty", fill.ExecQty.String()),
			slog.String("realized_pnl", realized.String()))

		if m.audit != nil {
			if err := m.audit.LogFill(&domain.TradeFillRecord{
				Timestamp:         fill.Timestamp,
				Symbol:            fill.Symbol,
				OrderID:           fill.OrderID,
				TradeID:           fill.TradeID,
				Side:              string(fill.Side),
				ExecPrice:         fill.ExecPrice,
				ExecQty:           fill.ExecQty,
				Fee:               fill.Fee,
				FeeCurrency:       fill.FeeCurrency,
				RealizedPnLImpact: realized,
				LiquidityRole:     string(fill.Role),
			}); err != nil {
				m.logger.Error("Failed to audit fill", slog.Any("error", err))
			}
		}
	}
}

// StaleOrders returns tracked orders older than maxAge.
func (m *OrderManager) StaleOrders(now time.Time, maxAge time.Duration) []domain.Order {
	var stale []domain.Order
	for _, o := range m.store.ActiveOrders() {
		if !o.CreatedAt.IsZero() && now.Sub(o.CreatedAt) > maxAge {
			stale = append(stale, o)
		}
	}
	return stale
}

func (m *OrderManager) auditOrder(o domain.Order, message string) {
	if m.audit == nil {
		return
	}
	err := m.audit.LogOrderEvent(&domain.OrderEventRecord{
		Timestamp:  time.Now().UTC(),
		Symbol:     o.Symbol,
		OrderID:    o.ID,
		ClientID:   o.ClientID,
		Side:       string(o.Side),
		OrderType:  domain.OrderTypeLimit,
		Price:      o.Price,
		Qty:        o.Qty,
		CumExecQty: o.CumExecQty,
		Status:     string(o.Status),
		ReduceOnly: o.ReduceOnly,
		Message:    message,
	})
	if err != nil {
		m.logger.Error("Failed to audit order event", slog.Any("error", err))
	}
}
