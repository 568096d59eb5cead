package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ALPHATRADER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ALPHATRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "ALPHATRADER_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.APIKey, "ALPHATRADER_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APIKey, "BINGX_API_KEY") // compatibility alias
	setStr(&cfg.Exchange.APISecret, "ALPHATRADER_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.APISecret, "BINGX_SECRET_KEY") // compatibility alias
	setStr(&cfg.Exchange.QuoteAsset, "ALPHATRADER_EXCHANGE_QUOTE_ASSET")
	setFloat64(&cfg.Exchange.CommissionPct, "ALPHATRADER_EXCHANGE_COMMISSION_PCT")
	setDuration(&cfg.Exchange.RequestTimeout, "ALPHATRADER_EXCHANGE_REQUEST_TIMEOUT")
	setInt(&cfg.Exchange.RateLimit, "ALPHATRADER_EXCHANGE_RATE_LIMIT")
	setFloat64(&cfg.Exchange.PaperBaseBalance, "ALPHATRADER_EXCHANGE_PAPER_BASE_BALANCE")

	// ── Database ──
	setStr(&cfg.Database.DSN, "ALPHATRADER_DATABASE_DSN")
	setStr(&cfg.Database.Host, "ALPHATRADER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "ALPHATRADER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "ALPHATRADER_DATABASE_NAME")
	setStr(&cfg.Database.User, "ALPHATRADER_DATABASE_USER")
	setStr(&cfg.Database.Password, "ALPHATRADER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "ALPHATRADER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "ALPHATRADER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "ALPHATRADER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "ALPHATRADER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ALPHATRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ALPHATRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ALPHATRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ALPHATRADER_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "ALPHATRADER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ALPHATRADER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ALPHATRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ALPHATRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "ALPHATRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ALPHATRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ALPHATRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ALPHATRADER_S3_USE_SSL")

	// ── Risk ──
	setFloat64(&cfg.Risk.CapitalPerSlot, "ALPHATRADER_RISK_CAPITAL_PER_SLOT")
	setInt(&cfg.Risk.MinPositions, "ALPHATRADER_RISK_MIN_POSITIONS")
	setInt(&cfg.Risk.MaxPositions, "MAX_POSITION_COUNT") // compatibility alias
	setInt(&cfg.Risk.MaxPositions, "ALPHATRADER_RISK_MAX_POSITIONS")
	setFloat64(&cfg.Risk.MaxOrderUSD, "MAX_ORDER_USD") // compatibility alias
	setFloat64(&cfg.Risk.MaxOrderUSD, "ALPHATRADER_RISK_MAX_ORDER_USD")
	setFloat64(&cfg.Risk.MaxSymbolUSD, "MAX_SYMBOL_EXPOSURE_USD") // compatibility alias
	setFloat64(&cfg.Risk.MaxSymbolUSD, "ALPHATRADER_RISK_MAX_SYMBOL_USD")
	setFloat64(&cfg.Risk.MaxDailyLossUSD, "MAX_DAILY_LOSS_USD") // compatibility alias
	setFloat64(&cfg.Risk.MaxDailyLossUSD, "ALPHATRADER_RISK_MAX_DAILY_LOSS_USD")
	setInt(&cfg.Risk.MaxTradesPerDay, "ALPHATRADER_RISK_MAX_TRADES_PER_DAY")
	setDuration(&cfg.Risk.SymbolCooldown, "ALPHATRADER_RISK_SYMBOL_COOLDOWN")
	setDuration(&cfg.Risk.ExitCooldown, "ALPHATRADER_RISK_EXIT_COOLDOWN")
	setInt(&cfg.Risk.FailureThreshold, "ALPHATRADER_RISK_FAILURE_THRESHOLD")
	setDuration(&cfg.Risk.PauseDuration, "ALPHATRADER_RISK_PAUSE_DURATION")

	// ── Lifecycle ──
	setFloat64(&cfg.Lifecycle.StopLossPct, "ALPHATRADER_LIFECYCLE_STOP_LOSS_PCT")
	setFloat64(&cfg.Lifecycle.TakeProfitPct, "ALPHATRADER_LIFECYCLE_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Lifecycle.BreakevenPct, "ALPHATRADER_LIFECYCLE_BREAKEVEN_PCT")
	setFloat64(&cfg.Lifecycle.TrailActivatePct, "ALPHATRADER_LIFECYCLE_TRAIL_ACTIVATE_PCT")
	setFloat64(&cfg.Lifecycle.TrailDistancePct, "ALPHATRADER_LIFECYCLE_TRAIL_DISTANCE_PCT")
	setDuration(&cfg.Lifecycle.MaxHold, "ALPHATRADER_LIFECYCLE_MAX_HOLD")
	setDuration(&cfg.Lifecycle.WatcherInterval, "ALPHATRADER_LIFECYCLE_WATCHER_INTERVAL")
	setDuration(&cfg.Lifecycle.ReconcileInterval, "ALPHATRADER_LIFECYCLE_RECONCILE_INTERVAL")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "ALPHATRADER_SCANNER_INTERVAL")
	setInt(&cfg.Scanner.Concurrency, "ALPHATRADER_SCANNER_CONCURRENCY")
	setFloat64(&cfg.Scanner.MinQuoteVolume, "ALPHATRADER_SCANNER_MIN_QUOTE_VOLUME")
	setInt(&cfg.Scanner.TopN, "ALPHATRADER_SCANNER_TOP_N")
	setStringSlice(&cfg.Scanner.Denylist, "ALPHATRADER_SCANNER_DENYLIST")
	setStr(&cfg.Scanner.Benchmark, "ALPHATRADER_SCANNER_BENCHMARK")
	setFloat64(&cfg.Scanner.VolatilityMaxRangePct, "ALPHATRADER_SCANNER_VOLATILITY_MAX_RANGE_PCT")
	setStringSlice(&cfg.Scanner.Strategies, "ALPHATRADER_SCANNER_STRATEGIES")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ALPHATRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ALPHATRADER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ALPHATRADER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ALPHATRADER_SERVER_API_KEY")
	setStr(&cfg.Server.APIKeyHash, "ALPHATRADER_SERVER_API_KEY_HASH")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ALPHATRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ALPHATRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ALPHATRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ALPHATRADER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADE_MODE") // compatibility alias
	setStr(&cfg.Mode, "ALPHATRADER_MODE")
	setStr(&cfg.LogLevel, "ALPHATRADER_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
