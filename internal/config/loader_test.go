package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "live"
log_level = "debug"

[risk]
max_order_usd = 250.0

[scanner]
interval = "90s"
strategies = ["alpha_hunter", "bollinger_reversion"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "live" || cfg.LogLevel != "debug" {
		t.Errorf("mode/level = %s/%s", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Risk.MaxOrderUSD != 250 {
		t.Errorf("max_order_usd = %v, want 250", cfg.Risk.MaxOrderUSD)
	}
	if cfg.Scanner.Interval.Duration != 90*time.Second {
		t.Errorf("interval = %v, want 90s", cfg.Scanner.Interval.Duration)
	}
	if len(cfg.Scanner.Strategies) != 2 {
		t.Errorf("strategies = %v", cfg.Scanner.Strategies)
	}
	// Untouched sections keep their defaults.
	if cfg.Risk.MaxDailyLossUSD != 500 {
		t.Errorf("max_daily_loss_usd = %v, want default 500", cfg.Risk.MaxDailyLossUSD)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("server port = %d, want default 8000", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("no error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ALPHATRADER_REDIS_ADDR", "redis-prod:6379")
	t.Setenv("ALPHATRADER_RISK_MAX_POSITIONS", "12")
	t.Setenv("ALPHATRADER_RISK_PAUSE_DURATION", "30m")
	t.Setenv("ALPHATRADER_SERVER_ENABLED", "false")
	t.Setenv("ALPHATRADER_SCANNER_DENYLIST", "USDC, EUR ,,GBP")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Redis.Addr != "redis-prod:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Risk.MaxPositions != 12 {
		t.Errorf("max positions = %d, want 12", cfg.Risk.MaxPositions)
	}
	if cfg.Risk.PauseDuration.Duration != 30*time.Minute {
		t.Errorf("pause = %v, want 30m", cfg.Risk.PauseDuration.Duration)
	}
	if cfg.Server.Enabled {
		t.Error("server still enabled")
	}
	want := []string{"USDC", "EUR", "GBP"}
	if len(cfg.Scanner.Denylist) != len(want) {
		t.Fatalf("denylist = %v, want %v", cfg.Scanner.Denylist, want)
	}
	for i, v := range want {
		if cfg.Scanner.Denylist[i] != v {
			t.Errorf("denylist[%d] = %q, want %q", i, cfg.Scanner.Denylist[i], v)
		}
	}
}

func TestEnvCompatibilityAliases(t *testing.T) {
	t.Setenv("BINGX_API_KEY", "k-legacy")
	t.Setenv("TRADE_MODE", "live")
	t.Setenv("MAX_DAILY_LOSS_USD", "750")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Exchange.APIKey != "k-legacy" {
		t.Errorf("api key = %q", cfg.Exchange.APIKey)
	}
	if cfg.Mode != "live" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Risk.MaxDailyLossUSD != 750 {
		t.Errorf("daily loss = %v", cfg.Risk.MaxDailyLossUSD)
	}
}

func TestEnvPrefixedWinsOverAlias(t *testing.T) {
	t.Setenv("TRADE_MODE", "paper")
	t.Setenv("ALPHATRADER_MODE", "live")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "live" {
		t.Errorf("mode = %q, want prefixed override to win", cfg.Mode)
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "dry-run"
	cfg.Redis.Addr = ""
	cfg.Risk.MaxDailyLossUSD = 0
	cfg.Scanner.Strategies = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("no error")
	}
	for _, frag := range []string{"unknown mode", "redis: addr", "max_daily_loss_usd", "at least one strategy"} {
		if !strings.Contains(err.Error(), frag) {
			t.Errorf("error missing %q:\n%v", frag, err)
		}
	}
}

func TestValidateLiveModeRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "api_key and api_secret") {
		t.Fatalf("err = %v, want credential complaint", err)
	}

	cfg.Exchange.APIKey = "k"
	cfg.Exchange.APISecret = "s"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("live with credentials: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.APIKey = "super-secret"
	cfg.Database.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)

	if red.Exchange.APIKey != "***" || red.Database.Password != "***" || red.Notify.TelegramToken != "***" {
		t.Error("secrets not redacted")
	}
	// Empty secrets stay empty rather than turning into noise.
	if red.Redis.Password != "" {
		t.Errorf("empty password = %q", red.Redis.Password)
	}
	// The original is untouched.
	if cfg.Exchange.APIKey != "super-secret" {
		t.Error("redaction mutated the source config")
	}
}
