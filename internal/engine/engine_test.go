package engine

import (
	"context"
	"testing"
	"time"
)

func testEngineForRollover(state *fakeStateStore) *Engine {
	return &Engine{
		state:   state,
		audit:   &fakeAuditStore{},
		metrics: testMetrics(),
		logger:  testLogger(),
		now:     time.Now,
	}
}

func TestRolloverResetsDayScopedState(t *testing.T) {
	ctx := context.Background()
	state := newFakeStateStore()
	state.st.TradesToday = 9
	state.st.DailyRealizedPnL = -120
	state.st.TotalRealizedPnL = 300
	state.st.LastResetDate = "2026-08-29"
	state.st.LastTradeAt[TradeKey("alpha_hunter", "SOL/USDT")] = time.Now()

	e := testEngineForRollover(state)
	e.rolloverIfNeeded(ctx)

	st, _ := state.Snapshot(ctx)
	if st.TradesToday != 0 {
		t.Errorf("trades today = %d, want 0", st.TradesToday)
	}
	if st.DailyRealizedPnL != 0 {
		t.Errorf("daily pnl = %.2f, want 0", st.DailyRealizedPnL)
	}
	if len(st.LastTradeAt) != 0 {
		t.Errorf("last-trade registry has %d entries, want cleared", len(st.LastTradeAt))
	}
	// Lifetime pnl survives the day boundary.
	if st.TotalRealizedPnL != 300 {
		t.Errorf("total pnl = %.2f, want 300", st.TotalRealizedPnL)
	}
	if want := time.Now().UTC().Format("2006-01-02"); st.LastResetDate != want {
		t.Errorf("reset date = %q, want %q", st.LastResetDate, want)
	}
}

func TestRolloverIsOncePerDay(t *testing.T) {
	ctx := context.Background()
	state := newFakeStateStore()
	state.st.TradesToday = 4
	state.st.LastResetDate = time.Now().UTC().Format("2006-01-02")
	state.st.LastTradeAt[TradeKey("alpha_hunter", "SOL/USDT")] = time.Now()

	e := testEngineForRollover(state)
	e.rolloverIfNeeded(ctx)

	st, _ := state.Snapshot(ctx)
	if st.TradesToday != 4 {
		t.Errorf("trades today = %d, want untouched 4", st.TradesToday)
	}
	if len(st.LastTradeAt) != 1 {
		t.Error("same-day rollover cleared the last-trade registry")
	}
}
