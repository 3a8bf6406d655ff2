package app

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
	"maker_go/internal/engine"
	"maker_go/internal/event"
	"maker_go/internal/execution"
	"maker_go/internal/infra"
	"maker_go/internal/infra/bybit"
	"maker_go/internal/infra/storage"
	"maker_go/internal/service"
	"maker_go/internal/strategy"
)

// paperStartingBalance seeds the paper wallet in DryRun/Simulation.
var paperStartingBalance = decimal.NewFromInt(10_000)

// Bootstrap orchestrates the application startup sequence: config,
// logging, audit storage, gateway selection, state restoration and
// startup reconciliation, ending with a fully wired engine.
type Bootstrap struct {
	Config *infra.Config
	Audit  *storage.AuditLog
	Engine *engine.Engine

	workers []domain.StreamWorker
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize builds the whole system. Any error here is fatal.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	slog.Info("🚀 Bootstrapping market maker...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return &domain.StartupError{Stage: "config", Err: err}
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	metrics := infra.NewMetrics()

	audit, err := storage.NewAuditLog(cfg.Files.AuditDBPath)
	if err != nil {
		return &domain.StartupError{Stage: "audit", Err: err}
	}
	b.Audit = audit
	slog.Info("✅ Audit log initialized", slog.String("path", cfg.Files.AuditDBPath))

	marketQ := make(chan event.Event, 1024)
	accountQ := make(chan event.Event, 1024)
	event.Warmup()

	symbol := cfg.Exchange.Symbol

	var gateway domain.ExchangeGateway
	var paper *execution.PaperGateway
	var info domain.MarketInfo

	switch cfg.Exchange.TradingMode {
	case infra.ModeLive:
		client := bybit.NewClient(cfg, metrics)
		gateway = client
		info, err = client.GetInstrumentInfo(ctx, symbol)
		if err != nil {
			return &domain.StartupError{Stage: "instrument_info", Err: err}
		}
		if cfg.Exchange.Category != "spot" {
			if err := client.SetLeverage(ctx, symbol, cfg.Exchange.Leverage); err != nil {
				return &domain.StartupError{Stage: "leverage", Err: err}
			}
		}

	case infra.ModeDryRun:
		// Paper fills against real venue trading rules and market data.
		paper = execution.NewPaperGateway(symbol, paperStartingBalance, accountQ)
		gateway = paper
		info, err = bybit.NewClient(cfg, metrics).GetInstrumentInfo(ctx, symbol)
		if err != nil {
			return &domain.StartupError{Stage: "instrument_info", Err: err}
		}
		paper.SetInstrumentInfo(info)

	default: // Simulation: never touches the venue's REST surface
		paper = execution.NewPaperGateway(symbol, paperStartingBalance, accountQ)
		gateway = paper
		info, err = paper.GetInstrumentInfo(ctx, symbol)
		if err != nil {
			return &domain.StartupError{Stage: "instrument_info", Err: err}
		}
	}
	slog.Info("✅ Instrument rules loaded",
		slog.String("symbol", info.Symbol),
		slog.String("tick", info.PriceTick.String()),
		slog.String("qty_step", info.QtyStep.String()))

	store := service.NewStateStore(symbol, cfg.Strategy.EMAAlpha, cfg.Strategy.PriceHistorySize)

	wallet, available, err := gateway.GetBalance(ctx, cfg.Exchange.QuoteCurrency)
	if err != nil {
		return &domain.StartupError{Stage: "balance", Err: err}
	}
	store.SetBalance(wallet, available)

	position, err := gateway.GetPosition(ctx, symbol)
	if err != nil {
		return &domain.StartupError{Stage: "position", Err: err}
	}
	store.SetPosition(position)
	slog.Info("✅ Account state loaded",
		slog.String("wallet", wallet.String()),
		slog.String("position", position.String()))

	snapshots := infra.NewSnapshotStore(cfg.Files.SnapshotPath, logger)
	snap, err := snapshots.Load()
	if err != nil {
		return &domain.StartupError{Stage: "snapshot", Err: err}
	}
	if snap != nil {
		if snap.Symbol == symbol {
			store.RestoreSnapshot(snap)
			// Live account state wins over whatever the snapshot carried.
			store.SetBalance(wallet, available)
			store.SetPosition(position)
			slog.Info("✅ State restored from snapshot",
				slog.Int("orders", len(snap.ActiveOrders)),
				slog.Time("saved_at", snap.SavedAt))
		} else {
			slog.Warn("Snapshot is for a different symbol, ignoring",
				slog.String("snapshot_symbol", snap.Symbol))
		}
	}

	manager := service.NewOrderManager(store, audit, metrics)

	if _, _, err := service.NewReconciler(store, gateway).Reconcile(ctx); err != nil {
		return &domain.StartupError{Stage: "reconcile", Err: err}
	}

	b.workers = []domain.StreamWorker{bybit.NewPublicWorker(cfg, marketQ, metrics)}
	if cfg.Exchange.TradingMode == infra.ModeLive {
		b.workers = append(b.workers, bybit.NewPrivateWorker(cfg, accountQ, metrics))
	}

	b.Engine = engine.NewEngine(cfg, engine.Deps{
		Store:        store,
		Manager:      manager,
		Risk:         service.NewRiskGovernor(cfg, store, gateway, metrics),
		Strategy:     strategy.NewFixedSpread(cfg.Strategy.BaseSpread, cfg.Strategy.OrderQuantity, cfg.Strategy.InventorySkew),
		Gateway:      gateway,
		Paper:        paper,
		Snapshots:    snapshots,
		Audit:        audit,
		Metrics:      metrics,
		Workers:      b.workers,
		Info:         info,
		MarketQueue:  marketQ,
		AccountQueue: accountQ,
	})

	return nil
}

// Run connects the stream workers and drives the engine until the
// context is cancelled or the engine dies.
func (b *Bootstrap) Run(ctx context.Context) error {
	for _, w := range b.workers {
		if err := w.Connect(ctx); err != nil {
			return &domain.StartupError{Stage: "stream_connect", Err: err}
		}
	}
	slog.Info("✨ Market maker operational", slog.Int("streams", len(b.workers)))

	return b.Engine.Run(ctx)
}

// Close releases resources after the engine has stopped.
func (b *Bootstrap) Close() {
	if b.Audit != nil {
		if err := b.Audit.Close(); err != nil {
			slog.Error("Failed to close audit log", slog.Any("error", err))
		}
	}
}
