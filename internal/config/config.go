// Package config defines the top-level configuration for the alpha-trader bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ALPHATRADER_* environment variables.
type Config struct {
	Exchange  ExchangeConfig  `toml:"exchange"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Risk      RiskConfig      `toml:"risk"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Engine    EngineConfig    `toml:"engine"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"` // "live" or "paper"
	LogLevel  string          `toml:"log_level"`
}

// ExchangeConfig holds exchange API endpoints and credentials.
type ExchangeConfig struct {
	BaseURL       string  `toml:"base_url"`
	APIKey        string  `toml:"api_key"`
	APISecret     string  `toml:"api_secret"`
	QuoteAsset    string  `toml:"quote_asset"`
	CommissionPct float64 `toml:"commission_pct"`
	// RequestTimeout bounds every REST call to the exchange.
	RequestTimeout duration `toml:"request_timeout"`
	// RateLimit caps calls per RateWindow across all engine tasks.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	// PaperBaseBalance seeds the simulated quote balance in paper mode.
	PaperBaseBalance float64 `toml:"paper_base_balance"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for cold archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveInterval is how often closed positions are swept to cold storage.
	ArchiveInterval duration `toml:"archive_interval"`
}

// RiskConfig holds the admission-control and capital-allocation parameters.
type RiskConfig struct {
	CapitalPerSlot    float64  `toml:"capital_per_slot"`
	MinPositions      int      `toml:"min_positions"`
	MaxPositions      int      `toml:"max_positions"`
	UtilizationTarget float64  `toml:"utilization_target"`
	FreeBuffer        float64  `toml:"free_buffer"`
	MinTradeUSD       float64  `toml:"min_trade_usd"`
	MaxOrderUSD       float64  `toml:"max_order_usd"`
	MaxSymbolUSD      float64  `toml:"max_symbol_usd"`
	MaxDailyLossUSD   float64  `toml:"max_daily_loss_usd"`
	MaxTradesPerDay   int      `toml:"max_trades_per_day"`
	SymbolCooldown    duration `toml:"symbol_cooldown"`
	ExitCooldown      duration `toml:"exit_cooldown"`
	// FailureThreshold consecutive exchange errors trigger an API pause.
	FailureThreshold int      `toml:"failure_threshold"`
	PauseDuration    duration `toml:"pause_duration"`
}

// LifecycleConfig holds the exit-plan policy knobs. The exact thresholds are
// policy, not part of the engine's correctness contract.
type LifecycleConfig struct {
	StopLossPct       float64  `toml:"stop_loss_pct"`       // default SL distance below entry, percent
	TakeProfitPct     float64  `toml:"take_profit_pct"`     // 0 = disabled
	BreakevenPct      float64  `toml:"breakeven_pct"`       // gain that shifts the stop to entry
	TrailActivatePct  float64  `toml:"trail_activate_pct"`  // highest-price gain that arms trailing
	TrailDistancePct  float64  `toml:"trail_distance_pct"`  // trail below highest, percent
	MaxHold           duration `toml:"max_hold"`            // time-based exit
	DustRatio         float64  `toml:"dust_ratio"`          // remainder below this fraction closes fully
	MinCloseNotional  float64  `toml:"min_close_notional"`  // remainder below this USD value closes fully
	MinOrderNotional  float64  `toml:"min_order_notional"`  // exchange minimum for a new entry
	WatcherInterval   duration `toml:"watcher_interval"`
	ReconcileInterval duration `toml:"reconcile_interval"`
}

// ScannerConfig holds candidate-selection parameters for the scan cycle.
type ScannerConfig struct {
	Interval       duration `toml:"interval"`
	Concurrency    int      `toml:"concurrency"`
	MinQuoteVolume float64  `toml:"min_quote_volume"`
	TopN           int      `toml:"top_n"`
	Denylist       []string `toml:"denylist"`
	Benchmark      string   `toml:"benchmark"`
	// VolatilityMaxRangePct halts the whole cycle when the benchmark's 24h
	// high/low range exceeds it.
	VolatilityMaxRangePct float64 `toml:"volatility_max_range_pct"`
	Timeframe             string  `toml:"timeframe"`
	CandleLimit           int     `toml:"candle_limit"`
	Strategies            []string `toml:"strategies"`
}

// EngineConfig holds cross-task engine parameters.
type EngineConfig struct {
	LeaderLock bool     `toml:"leader_lock"`
	LockTTL    duration `toml:"lock_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// APIKeyHash is an optional bcrypt hash; when set it takes precedence over
	// the plaintext APIKey comparison.
	APIKeyHash string `toml:"api_key_hash"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL:          "https://open-api.bingx.com",
			QuoteAsset:       "USDT",
			CommissionPct:    0.001,
			RequestTimeout:   duration{10 * time.Second},
			RateLimit:        90,
			RateWindow:       duration{10 * time.Second},
			PaperBaseBalance: 200.0,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "alphatrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:         false,
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "alphatrader-archive",
			ForcePathStyle:  true,
			ArchiveInterval: duration{24 * time.Hour},
		},
		Risk: RiskConfig{
			CapitalPerSlot:    30.0,
			MinPositions:      2,
			MaxPositions:      20,
			UtilizationTarget: 0.95,
			FreeBuffer:        0.98,
			MinTradeUSD:       5.0,
			MaxOrderUSD:       120.0,
			MaxSymbolUSD:      120.0,
			MaxDailyLossUSD:   500.0,
			MaxTradesPerDay:   200,
			SymbolCooldown:    duration{5 * time.Minute},
			ExitCooldown:      duration{15 * time.Minute},
			FailureThreshold:  5,
			PauseDuration:     duration{15 * time.Minute},
		},
		Lifecycle: LifecycleConfig{
			StopLossPct:       4.0,
			TakeProfitPct:     0.0,
			BreakevenPct:      1.2,
			TrailActivatePct:  1.5,
			TrailDistancePct:  2.0,
			MaxHold:           duration{12 * time.Hour},
			DustRatio:         0.05,
			MinCloseNotional:  2.0,
			MinOrderNotional:  5.0,
			WatcherInterval:   duration{5 * time.Second},
			ReconcileInterval: duration{10 * time.Minute},
		},
		Scanner: ScannerConfig{
			Interval:              duration{5 * time.Minute},
			Concurrency:           10,
			MinQuoteVolume:        100_000,
			TopN:                  40,
			Denylist:              []string{"USDC", "USDP", "FDUSD", "TUSD", "EUR", "GBP", "DAI"},
			Benchmark:             "BTC/USDT",
			VolatilityMaxRangePct: 6.0,
			Timeframe:             "1h",
			CandleLimit:           25,
			Strategies:            []string{"alpha_hunter"},
		},
		Engine: EngineConfig{
			LeaderLock: true,
			LockTTL:    duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "kill_switch", "api_pause"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":  true,
	"paper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange: live mode requires credentials.
	if strings.ToLower(c.Mode) == "live" {
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			errs = append(errs, "exchange: api_key and api_secret are required for live mode")
		}
	}
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.CommissionPct < 0 || c.Exchange.CommissionPct > 0.05 {
		errs = append(errs, fmt.Sprintf("exchange: commission_pct %.4f outside [0, 0.05]", c.Exchange.CommissionPct))
	}
	if c.Exchange.RequestTimeout.Duration <= 0 {
		errs = append(errs, "exchange: request_timeout must be positive")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Risk
	if c.Risk.CapitalPerSlot <= 0 {
		errs = append(errs, "risk: capital_per_slot must be > 0")
	}
	if c.Risk.MinPositions < 1 || c.Risk.MaxPositions < c.Risk.MinPositions {
		errs = append(errs, "risk: need 1 <= min_positions <= max_positions")
	}
	if c.Risk.UtilizationTarget <= 0 || c.Risk.UtilizationTarget > 1 {
		errs = append(errs, "risk: utilization_target must be in (0, 1]")
	}
	if c.Risk.FreeBuffer <= 0 || c.Risk.FreeBuffer > 0.98 {
		errs = append(errs, "risk: free_buffer must be in (0, 0.98]")
	}
	if c.Risk.MinTradeUSD <= 0 || c.Risk.MaxOrderUSD < c.Risk.MinTradeUSD {
		errs = append(errs, "risk: need 0 < min_trade_usd <= max_order_usd")
	}
	if c.Risk.MaxDailyLossUSD <= 0 {
		errs = append(errs, "risk: max_daily_loss_usd must be > 0")
	}
	if c.Risk.FailureThreshold < 1 {
		errs = append(errs, "risk: failure_threshold must be >= 1")
	}

	// Lifecycle
	if c.Lifecycle.StopLossPct < 0 || c.Lifecycle.StopLossPct >= 100 {
		errs = append(errs, "lifecycle: stop_loss_pct must be in [0, 100)")
	}
	if c.Lifecycle.TrailDistancePct <= 0 || c.Lifecycle.TrailDistancePct >= 100 {
		errs = append(errs, "lifecycle: trail_distance_pct must be in (0, 100)")
	}
	if c.Lifecycle.DustRatio < 0 || c.Lifecycle.DustRatio >= 1 {
		errs = append(errs, "lifecycle: dust_ratio must be in [0, 1)")
	}
	if c.Lifecycle.WatcherInterval.Duration <= 0 || c.Lifecycle.ReconcileInterval.Duration <= 0 {
		errs = append(errs, "lifecycle: watcher_interval and reconcile_interval must be positive")
	}

	// Scanner
	if c.Scanner.Concurrency < 1 {
		errs = append(errs, "scanner: concurrency must be >= 1")
	}
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be positive")
	}
	if c.Scanner.Benchmark == "" {
		errs = append(errs, "scanner: benchmark must not be empty")
	}
	if len(c.Scanner.Strategies) == 0 {
		errs = append(errs, "scanner: at least one strategy must be configured")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
