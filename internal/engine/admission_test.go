package engine

import (
	"testing"
	"time"

	"github.com/gitco/alphatrader/internal/domain"
)

func testAdmission() (*AdmissionController, *SafetyMonitor) {
	risk := testRisk()
	safety := NewSafetyMonitor(risk.FailureThreshold, risk.PauseDuration.Duration, testLogger())
	return NewAdmissionController(NewAllocator(risk), safety, risk, testLogger()), safety
}

func TestCanAdmitHappyPath(t *testing.T) {
	c, _ := testAdmission()

	ok, reason := c.CanAdmit("SOL/USDT", 30, "alpha_hunter", 200, nil, domain.DefaultBotState(), time.Now())
	if !ok || reason != ReasonOK {
		t.Fatalf("expected admission, got %v %q", ok, reason)
	}
}

func TestCanAdmitOrderedDenials(t *testing.T) {
	now := time.Now()
	base := domain.DefaultBotState()

	tests := []struct {
		name     string
		mutate   func(st *domain.BotState) (symbol string, usd float64, open []domain.Position)
		want     Reason
	}{
		{
			name: "kill switch",
			mutate: func(st *domain.BotState) (string, float64, []domain.Position) {
				st.KillSwitch = true
				return "SOL/USDT", 30, nil
			},
			want: ReasonKillSwitch,
		},
		{
			name: "daily loss limit",
			mutate: func(st *domain.BotState) (string, float64, []domain.Position) {
				st.DailyRealizedPnL = -500 // exactly at the floor
				return "SOL/USDT", 30, nil
			},
			want: ReasonDailyLossLimit,
		},
		{
			name: "order too large",
			mutate: func(st *domain.BotState) (string, float64, []domain.Position) {
				return "SOL/USDT", 121, nil
			},
			want: ReasonOrderTooLarge,
		},
		{
			name: "symbol exposure ceiling",
			mutate: func(st *domain.BotState) (string, float64, []domain.Position) {
				return "SOL/USDT", 30, []domain.Position{
					{Symbol: "SOL/USDT", Strategy: "other", Status: domain.PositionStatusOpen, UsedUSD: 100},
				}
			},
			want: ReasonSymbolExposure,
		},
		{
			name: "trade limit",
			mutate: func(st *domain.BotState) (string, float64, []domain.Position) {
				st.TradesToday = 200
				return "SOL/USDT", 30, nil
			},
			want: ReasonTradeLimit,
		},
		{
			name: "max positions",
			mutate: func(st *domain.BotState) (string, float64, []domain.Position) {
				// equity 200 -> 6 slots; 6 open positions on other symbols
				open := make([]domain.Position, 6)
				for i := range open {
					open[i] = domain.Position{Symbol: "X/USDT", Status: domain.PositionStatusOpen}
				}
				return "SOL/USDT", 30, open
			},
			want: ReasonMaxPositions,
		},
		{
			name: "symbol already held",
			mutate: func(st *domain.BotState) (string, float64, []domain.Position) {
				return "SOL/USDT", 30, []domain.Position{
					{Symbol: "SOL/USDT", Strategy: "other", Status: domain.PositionStatusOpen},
				}
			},
			want: ReasonSymbolHeld,
		},
		{
			name: "exit cooldown",
			mutate: func(st *domain.BotState) (string, float64, []domain.Position) {
				st.ExitCooldowns["SOL/USDT"] = now.Add(5 * time.Minute)
				return "SOL/USDT", 30, nil
			},
			want: ReasonExitCooldown,
		},
		{
			name: "symbol cooldown across strategies",
			mutate: func(st *domain.BotState) (string, float64, []domain.Position) {
				st.LastTradeAt[TradeKey("other_strategy", "SOL/USDT")] = now.Add(-time.Minute)
				return "SOL/USDT", 30, nil
			},
			want: ReasonSymbolCooldown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := testAdmission()
			st := base
			st.LastTradeAt = map[string]time.Time{}
			st.ExitCooldowns = map[string]time.Time{}

			symbol, usd, open := tt.mutate(&st)
			ok, reason := c.CanAdmit(symbol, usd, "alpha_hunter", 200, open, st, now)
			if ok || reason != tt.want {
				t.Errorf("got %v %q, want denial %q", ok, reason, tt.want)
			}
		})
	}
}

func TestCanAdmitAPIPauseWinsOverEverything(t *testing.T) {
	c, safety := testAdmission()

	// Trip the breaker: threshold consecutive failures.
	for i := 0; i < testRisk().FailureThreshold; i++ {
		safety.RecordFailure()
	}

	st := domain.DefaultBotState()
	st.KillSwitch = true // would otherwise be the second check

	ok, reason := c.CanAdmit("SOL/USDT", 30, "alpha_hunter", 200, nil, st, time.Now())
	if ok || reason != ReasonAPIPause {
		t.Fatalf("got %v %q, want api_pause", ok, reason)
	}

	// The pause self-expires.
	after := safety.PausedUntil().Add(time.Second)
	st.KillSwitch = false
	ok, reason = c.CanAdmit("SOL/USDT", 30, "alpha_hunter", 200, nil, st, after)
	if !ok || reason != ReasonOK {
		t.Fatalf("after pause expiry got %v %q, want admission", ok, reason)
	}
}

func TestCanAdmitExpiredCooldownsAdmit(t *testing.T) {
	c, _ := testAdmission()
	now := time.Now()

	st := domain.DefaultBotState()
	st.ExitCooldowns["SOL/USDT"] = now.Add(-time.Second)
	st.LastTradeAt[TradeKey("alpha_hunter", "SOL/USDT")] = now.Add(-10 * time.Minute)

	ok, reason := c.CanAdmit("SOL/USDT", 30, "alpha_hunter", 200, nil, st, now)
	if !ok || reason != ReasonOK {
		t.Fatalf("got %v %q, want admission", ok, reason)
	}
}

func TestCanAdmitIsPure(t *testing.T) {
	c, _ := testAdmission()
	now := time.Now()
	st := domain.DefaultBotState()

	c.CanAdmit("SOL/USDT", 30, "alpha_hunter", 200, nil, st, now)

	if st.TradesToday != 0 || len(st.LastTradeAt) != 0 || len(st.ExitCooldowns) != 0 {
		t.Error("admission check mutated the state snapshot")
	}
}
