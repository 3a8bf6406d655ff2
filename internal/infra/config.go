package infra

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"maker_go/internal/domain"
)

// Trading modes. Live talks to the real venue; DryRun and Simulation
// run against the paper gateway.
const (
	ModeLive       = "LIVE"
	ModeDryRun     = "DRY_RUN"
	ModeSimulation = "SIMULATION"
)

// Config holds the full, immutable engine configuration. It is loaded
// once at bootstrap and injected by construction; credentials may be
// overridden from the environment after the file is parsed.
type Config struct {
	Exchange struct {
		APIKey        string `yaml:"api_key"`
		APISecret     string `yaml:"api_secret"`
		Testnet       bool   `yaml:"testnet"`
		TradingMode   string `yaml:"trading_mode"` // LIVE, DRY_RUN, SIMULATION
		Category      string `yaml:"category"`     // linear, inverse, spot
		Symbol        string `yaml:"symbol"`
		QuoteCurrency string `yaml:"quote_currency"`
		Leverage      int    `yaml:"leverage"`
	} `yaml:"exchange"`

	System struct {
		LoopIntervalMS           int `yaml:"loop_interval_ms"`
		OrderRefreshIntervalSec  int `yaml:"order_refresh_interval_sec"`
		StatusReportIntervalSec  int `yaml:"status_report_interval_sec"`
		HealthCheckIntervalSec   int `yaml:"health_check_interval_sec"`
		WSHeartbeatTimeoutSec    int `yaml:"ws_heartbeat_timeout_sec"`
		WSReconnectAttempts      int `yaml:"ws_reconnect_attempts"`
		WSReconnectInitialSec    int `yaml:"ws_reconnect_initial_delay_sec"`
		WSReconnectMaxSec        int `yaml:"ws_reconnect_max_delay_sec"`
		APIRetryAttempts         int `yaml:"api_retry_attempts"`
		APIRetryInitialMS        int `yaml:"api_retry_initial_delay_ms"`
		APIRetryMaxMS            int `yaml:"api_retry_max_delay_ms"`
		CancellationMinSpacingMS int `yaml:"cancellation_min_spacing_ms"`
		MaxOrderAgeSec           int `yaml:"max_order_age_sec"`
		RESTWorkers              int `yaml:"rest_workers"`
	} `yaml:"system"`

	Risk struct {
		PauseThreshold   decimal.Decimal `yaml:"pause_threshold"` // fractional move, e.g. 0.02
		PriceWindowSec   int             `yaml:"price_window_sec"`
		PauseDurationSec int             `yaml:"pause_duration_sec"`
		CooldownSec      int             `yaml:"cooldown_sec"`
		MaxDailyLoss     decimal.Decimal `yaml:"max_daily_loss"` // fraction of baseline, 0 disables
	} `yaml:"risk"`

	Strategy struct {
		BaseSpread       decimal.Decimal `yaml:"base_spread"` // fractional full spread, e.g. 0.002
		OrderQuantity    decimal.Decimal `yaml:"order_quantity"`
		InventorySkew    decimal.Decimal `yaml:"inventory_skew"`
		EMAAlpha         decimal.Decimal `yaml:"ema_alpha"`
		PriceHistorySize int             `yaml:"price_history_size"`
	} `yaml:"strategy"`

	Files struct {
		SnapshotPath string `yaml:"snapshot_path"`
		AuditDBPath  string `yaml:"audit_db_path"`
		LogDir       string `yaml:"log_dir"`
	} `yaml:"files"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies
// environment overrides, fills defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides credentials when the environment provides them.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("BYBIT_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("BYBIT_API_SECRET"); secret != "" {
		cfg.Exchange.APISecret = secret
	}
}

func (c *Config) applyDefaults() {
	if c.Exchange.TradingMode == "" {
		c.Exchange.TradingMode = ModeDryRun
	}
	if c.Exchange.Category == "" {
		c.Exchange.Category = "linear"
	}
	if c.Exchange.QuoteCurrency == "" {
		c.Exchange.QuoteCurrency = "USDT"
	}
	if c.Exchange.Leverage == 0 {
		c.Exchange.Leverage = 1
	}

	s := &c.System
	if s.LoopIntervalMS == 0 {
		s.LoopIntervalMS = 500
	}
	if s.OrderRefreshIntervalSec == 0 {
		s.OrderRefreshIntervalSec = 5
	}
	if s.StatusReportIntervalSec == 0 {
		s.StatusReportIntervalSec = 30
	}
	if s.HealthCheckIntervalSec == 0 {
		s.HealthCheckIntervalSec = 10
	}
	if s.WSHeartbeatTimeoutSec == 0 {
		s.WSHeartbeatTimeoutSec = 30
	}
	if s.WSReconnectAttempts == 0 {
		s.WSReconnectAttempts = 5
	}
	if s.WSReconnectInitialSec == 0 {
		s.WSReconnectInitialSec = 5
	}
	if s.WSReconnectMaxSec == 0 {
		s.WSReconnectMaxSec = 60
	}
	if s.APIRetryAttempts == 0 {
		s.APIRetryAttempts = 5
	}
	if s.APIRetryInitialMS == 0 {
		s.APIRetryInitialMS = 500
	}
	if s.APIRetryMaxMS == 0 {
		s.APIRetryMaxMS = 10_000
	}
	if s.CancellationMinSpacingMS == 0 {
		s.CancellationMinSpacingMS = 200
	}
	if s.MaxOrderAgeSec == 0 {
		s.MaxOrderAgeSec = 120
	}
	if s.RESTWorkers == 0 {
		s.RESTWorkers = 4
	}

	r := &c.Risk
	if r.PauseThreshold.IsZero() {
		r.PauseThreshold = decimal.NewFromFloat(0.02)
	}
	if r.PriceWindowSec == 0 {
		r.PriceWindowSec = 10
	}
	if r.PauseDurationSec == 0 {
		r.PauseDurationSec = 60
	}
	if r.CooldownSec == 0 {
		r.CooldownSec = 300
	}

	st := &c.Strategy
	if st.BaseSpread.IsZero() {
		st.BaseSpread = decimal.NewFromFloat(0.002)
	}
	if st.EMAAlpha.IsZero() {
		st.EMAAlpha = decimal.NewFromFloat(0.2)
	}
	if st.PriceHistorySize == 0 {
		st.PriceHistorySize = 600
	}

	f := &c.Files
	if f.SnapshotPath == "" {
		f.SnapshotPath = "data/state.json"
	}
	if f.AuditDBPath == "" {
		f.AuditDBPath = "data/audit.db"
	}
	if f.LogDir == "" {
		f.LogDir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Exchange.Symbol == "" {
		return &domain.ConfigError{Field: "exchange.symbol", Err: errors.New("symbol is required")}
	}

	switch c.Exchange.TradingMode {
	case ModeLive, ModeDryRun, ModeSimulation:
	default:
		return &domain.ConfigError{Field: "exchange.trading_mode",
			Err: fmt.Errorf("unknown trading mode %q", c.Exchange.TradingMode)}
	}

	switch c.Exchange.Category {
	case "linear", "inverse", "spot":
	default:
		return &domain.ConfigError{Field: "exchange.category",
			Err: fmt.Errorf("unknown category %q", c.Exchange.Category)}
	}

	if c.Exchange.TradingMode == ModeLive && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return &domain.ConfigError{Field: "exchange.api_key",
			Err: errors.New("credentials are required for live trading")}
	}

	if c.Risk.PauseThreshold.IsNegative() {
		return &domain.ConfigError{Field: "risk.pause_threshold", Err: errors.New("must not be negative")}
	}
	if c.Risk.MaxDailyLoss.IsNegative() {
		return &domain.ConfigError{Field: "risk.max_daily_loss", Err: errors.New("must not be negative")}
	}
	if c.Strategy.OrderQuantity.IsNegative() {
		return &domain.ConfigError{Field: "strategy.order_quantity", Err: errors.New("must not be negative")}
	}
	if c.Strategy.EMAAlpha.IsNegative() || c.Strategy.EMAAlpha.GreaterThan(decimal.NewFromInt(1)) {
		return &domain.ConfigError{Field: "strategy.ema_alpha", Err: errors.New("must be in [0, 1]")}
	}

	return nil
}

// Duration accessors keep the yaml surface integer-typed while the rest
// of the code works in time.Duration.

func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.System.LoopIntervalMS) * time.Millisecond
}

func (c *Config) OrderRefreshInterval() time.Duration {
	return time.Duration(c.System.OrderRefreshIntervalSec) * time.Second
}

func (c *Config) StatusReportInterval() time.Duration {
	return time.Duration(c.System.StatusReportIntervalSec) * time.Second
}

func (c *Config) HealthCheckInterval() time.Duration {
	return time.Duration(c.System.HealthCheckIntervalSec) * time.Second
}

func (c *Config) WSHeartbeatTimeout() time.Duration {
	return time.Duration(c.System.WSHeartbeatTimeoutSec) * time.Second
}

func (c *Config) WSReconnectInitialDelay() time.Duration {
	return time.Duration(c.System.WSReconnectInitialSec) * time.Second
}

func (c *Config) WSReconnectMaxDelay() time.Duration {
	return time.Duration(c.System.WSReconnectMaxSec) * time.Second
}

func (c *Config) APIRetryInitialDelay() time.Duration {
	return time.Duration(c.System.APIRetryInitialMS) * time.Millisecond
}

func (c *Config) APIRetryMaxDelay() time.Duration {
	return time.Duration(c.System.APIRetryMaxMS) * time.Millisecond
}

func (c *Config) CancellationMinSpacing() time.Duration {
	return time.Duration(c.System.CancellationMinSpacingMS) * time.Millisecond
}

func (c *Config) MaxOrderAge() time.Duration {
	return time.Duration(c.System.MaxOrderAgeSec) * time.Second
}

func (c *Config) PriceWindow() time.Duration {
	return time.Duration(c.Risk.PriceWindowSec) * time.Second
}

func (c *Config) PauseDuration() time.Duration {
	return time.Duration(c.Risk.PauseDurationSec) * time.Second
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Risk.CooldownSec) * time.Second
}
