package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gitco/alphatrader/internal/domain"
)

func TestExecuteBuyOpensPosition(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 100},
	}}
	store := newFakePositionStore()
	state := newFakeStateStore()
	audit := &fakeAuditStore{}
	lc := testLifecycle(ex, store, state, audit)

	pos, err := lc.ExecuteBuy(ctx, "SOL/USDT", "alpha_hunter", 50, domain.SignalResult{Entry: true})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if pos.EntryPrice != 100 || math.Abs(pos.Quantity-0.5) > 1e-6 {
		t.Errorf("entry %.2f qty %.6f, want 100 / 0.5", pos.EntryPrice, pos.Quantity)
	}
	// Default stop derives from the 4% policy.
	if math.Abs(pos.StopLoss-96) > 1e-6 {
		t.Errorf("stop = %.6f, want 96", pos.StopLoss)
	}
	if !pos.IsOpen() {
		t.Error("new position not open")
	}

	st, _ := state.Snapshot(ctx)
	if st.TradesToday != 1 {
		t.Errorf("trades today = %d, want 1", st.TradesToday)
	}
	if _, ok := st.LastTradeAt[TradeKey("alpha_hunter", "SOL/USDT")]; !ok {
		t.Error("last-trade registry not updated")
	}
	if !audit.has("position.opened") {
		t.Error("open not audited")
	}
}

func TestExecuteBuyMergesByWeightedAverage(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 100},
	}}
	store := newFakePositionStore()
	lc := testLifecycle(ex, store, newFakeStateStore(), &fakeAuditStore{})

	first, err := lc.ExecuteBuy(ctx, "SOL/USDT", "alpha_hunter", 100, domain.SignalResult{Entry: true})
	if err != nil {
		t.Fatalf("first buy: %v", err)
	}

	ex.tickers["SOL/USDT"] = domain.Ticker{Symbol: "SOL/USDT", Last: 110}
	merged, err := lc.ExecuteBuy(ctx, "SOL/USDT", "alpha_hunter", 110, domain.SignalResult{Entry: true})
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}

	if merged.ID != first.ID {
		t.Fatal("second entry created a new row instead of merging")
	}
	// 1 @ 100 plus 1 @ 110 -> 2 @ 105.
	if math.Abs(merged.Quantity-2) > 1e-6 {
		t.Errorf("qty = %.6f, want 2", merged.Quantity)
	}
	if math.Abs(merged.EntryPrice-105) > 1e-6 {
		t.Errorf("avg entry = %.6f, want 105", merged.EntryPrice)
	}
	if math.Abs(merged.UsedUSD-210) > 1e-6 {
		t.Errorf("used = %.6f, want 210", merged.UsedUSD)
	}

	open, _ := store.ListOpen(ctx)
	if len(open) != 1 {
		t.Errorf("open rows = %d, want 1", len(open))
	}
	// Merging keeps the lower stop: the fresh 4% stop off 110 (105.6) would
	// sit above where the first tranche was allowed to run.
	if math.Abs(merged.StopLoss-96) > 1e-6 {
		t.Errorf("merged stop = %.6f, want 96", merged.StopLoss)
	}
}

func TestMergeKeepsConservativeExitPlan(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 100},
	}}
	store := newFakePositionStore()
	lc := testLifecycle(ex, store, newFakeStateStore(), &fakeAuditStore{})

	_, err := lc.ExecuteBuy(ctx, "SOL/USDT", "alpha_hunter", 50,
		domain.SignalResult{Entry: true, StopLoss: 90, TakeProfit: 150})
	if err != nil {
		t.Fatalf("first buy: %v", err)
	}

	merged, err := lc.ExecuteBuy(ctx, "SOL/USDT", "alpha_hunter", 50,
		domain.SignalResult{Entry: true, StopLoss: 95, TakeProfit: 130})
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}

	// Lower stop and higher target win.
	if merged.StopLoss != 90 {
		t.Errorf("stop = %.2f, want 90", merged.StopLoss)
	}
	if merged.TakeProfit != 150 {
		t.Errorf("target = %.2f, want 150", merged.TakeProfit)
	}
}

func TestExecuteBuyRejectsBelowMinNotional(t *testing.T) {
	lc := testLifecycle(&fakeExchange{}, newFakePositionStore(), newFakeStateStore(), &fakeAuditStore{})

	_, err := lc.ExecuteBuy(context.Background(), "SOL/USDT", "alpha_hunter", 1, domain.SignalResult{})
	if !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("err = %v, want ErrInvalidOrder", err)
	}
}

func TestExecuteBuyRejectsBadSignalStopBeforeOrder(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 100},
	}}
	store := newFakePositionStore()
	lc := testLifecycle(ex, store, newFakeStateStore(), &fakeAuditStore{})

	// A stop at or above the market is implausible for a long. The rejection
	// must land before the order: funds spent on an untracked fill would be
	// invisible to the no-stacking check and bought again next cycle.
	_, err := lc.ExecuteBuy(ctx, "SOL/USDT", "alpha_hunter", 50, domain.SignalResult{Entry: true, StopLoss: 150})
	if !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("err = %v, want ErrInvalidOrder", err)
	}
	if len(ex.buys) != 0 {
		t.Errorf("placed %d orders, want none", len(ex.buys))
	}
	open, _ := store.ListOpen(ctx)
	if len(open) != 0 {
		t.Error("rejected entry left a position row")
	}
}

func TestExecuteBuySlippedFillFallsBackToPercentStop(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{
		tickers:      map[string]domain.Ticker{"SOL/USDT": {Symbol: "SOL/USDT", Last: 100}},
		buyFillPrice: 94, // fills at or below the signal stop
	}
	store := newFakePositionStore()
	lc := testLifecycle(ex, store, newFakeStateStore(), &fakeAuditStore{})

	// Stop 95 clears the ticker check at 100, but the order fills at 94. The
	// position must still be tracked, with the percentage stop off the fill.
	pos, err := lc.ExecuteBuy(ctx, "SOL/USDT", "alpha_hunter", 50, domain.SignalResult{Entry: true, StopLoss: 95})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if pos.EntryPrice != 94 {
		t.Errorf("entry = %.2f, want the slipped 94", pos.EntryPrice)
	}
	if math.Abs(pos.StopLoss-94*0.96) > 1e-6 {
		t.Errorf("stop = %.6f, want %.6f (4%% below fill)", pos.StopLoss, 94*0.96)
	}
	open, _ := store.ListOpen(ctx)
	if len(open) != 1 {
		t.Errorf("open rows = %d, want 1", len(open))
	}
}

func TestExecuteSellFullClose(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 110},
	}}
	store := newFakePositionStore()
	state := newFakeStateStore()
	audit := &fakeAuditStore{}
	lc := testLifecycle(ex, store, state, audit)

	store.Create(ctx, domain.Position{
		ID: "p1", Symbol: "SOL/USDT", Strategy: "alpha_hunter",
		EntryPrice: 100, Quantity: 1, UsedUSD: 100, CurrentPrice: 110,
		Status: domain.PositionStatusOpen, OpenedAt: time.Now(),
	})

	pos, err := lc.CloseByID(ctx, "p1", 0, "manual")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if pos.IsOpen() {
		t.Fatal("position open after full close")
	}
	if math.Abs(pos.RealizedPnL-10) > 1e-6 {
		t.Errorf("pnl = %.6f, want 10", pos.RealizedPnL)
	}
	if pos.ExitPrice != 110 {
		t.Errorf("exit = %.2f, want 110", pos.ExitPrice)
	}

	st, _ := state.Snapshot(ctx)
	if math.Abs(st.DailyRealizedPnL-10) > 1e-6 {
		t.Errorf("daily pnl = %.6f, want 10", st.DailyRealizedPnL)
	}
	if _, ok := st.ExitCooldowns["SOL/USDT"]; !ok {
		t.Error("exit cooldown not registered")
	}
	if !audit.has("position.closed") {
		t.Error("close not audited")
	}
}

func TestExecuteSellDustRemainderWidensToFullClose(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 100},
	}}
	store := newFakePositionStore()
	lc := testLifecycle(ex, store, newFakeStateStore(), &fakeAuditStore{})

	store.Create(ctx, domain.Position{
		ID: "p1", Symbol: "SOL/USDT", Strategy: "alpha_hunter",
		EntryPrice: 100, Quantity: 10, UsedUSD: 1000, CurrentPrice: 100,
		Status: domain.PositionStatusOpen, OpenedAt: time.Now(),
	})

	// Selling 9.8 would leave 0.2, below 5% of 10; widen to everything.
	pos, err := lc.CloseByID(ctx, "p1", 9.8, "manual")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if pos.IsOpen() {
		t.Fatal("dust remainder kept the position open")
	}
	if len(ex.sells) != 1 || math.Abs(ex.sells[0].Quantity-10) > 1e-6 {
		t.Errorf("sold %.6f, want the full 10", ex.sells[0].Quantity)
	}
}

func TestExecuteSellPartialScalesCost(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 100},
	}}
	store := newFakePositionStore()
	lc := testLifecycle(ex, store, newFakeStateStore(), &fakeAuditStore{})

	store.Create(ctx, domain.Position{
		ID: "p1", Symbol: "SOL/USDT", Strategy: "alpha_hunter",
		EntryPrice: 100, Quantity: 10, UsedUSD: 1000,
		CurrentPrice: 110, UnrealizedPnL: 100,
		Status: domain.PositionStatusOpen, OpenedAt: time.Now(),
	})

	pos, err := lc.CloseByID(ctx, "p1", 5, "manual")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !pos.IsOpen() {
		t.Fatal("partial close ended the position")
	}
	if math.Abs(pos.Quantity-5) > 1e-6 || math.Abs(pos.UsedUSD-500) > 1e-6 {
		t.Errorf("qty %.6f used %.6f, want 5 / 500", pos.Quantity, pos.UsedUSD)
	}
	// The mark-to-market follows the reduced quantity: (110-100) x 5.
	if math.Abs(pos.UnrealizedPnL-50) > 1e-6 {
		t.Errorf("unrealized = %.6f, want 50", pos.UnrealizedPnL)
	}
}

func TestDailyLossBreachTripsKillSwitch(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 40},
	}}
	store := newFakePositionStore()
	state := newFakeStateStore()
	state.st.DailyRealizedPnL = -450 // floor is -500
	audit := &fakeAuditStore{}
	lc := testLifecycle(ex, store, state, audit)

	store.Create(ctx, domain.Position{
		ID: "p1", Symbol: "SOL/USDT", Strategy: "alpha_hunter",
		EntryPrice: 100, Quantity: 1, UsedUSD: 100, CurrentPrice: 40,
		Status: domain.PositionStatusOpen, OpenedAt: time.Now(),
	})

	// Closing at 40 realizes -60, pushing daily to -510.
	if _, err := lc.CloseByID(ctx, "p1", 0, "stop_loss"); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, _ := state.Snapshot(ctx)
	if !st.KillSwitch {
		t.Error("kill switch not set on daily loss breach")
	}
	if st.AutoTrading {
		t.Error("auto trading still enabled after breach")
	}
	if !audit.has("kill_switch.tripped") {
		t.Error("kill switch trip not audited")
	}
}

func TestUpdateExitPlan(t *testing.T) {
	ctx := context.Background()
	store := newFakePositionStore()
	lc := testLifecycle(&fakeExchange{}, store, newFakeStateStore(), &fakeAuditStore{})

	store.Create(ctx, domain.Position{
		ID: "p1", Symbol: "SOL/USDT", EntryPrice: 100, Quantity: 1,
		CurrentPrice: 105, StopLoss: 96, TakeProfit: 0,
		Status: domain.PositionStatusOpen, OpenedAt: time.Now(),
	})

	pos, err := lc.UpdateExitPlan(ctx, "p1", 98, 120)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if pos.StopLoss != 98 || pos.TakeProfit != 120 {
		t.Errorf("plan = %.2f/%.2f, want 98/120", pos.StopLoss, pos.TakeProfit)
	}

	// Zero leaves a level as-is, negative disables it.
	pos, err = lc.UpdateExitPlan(ctx, "p1", 0, -1)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if pos.StopLoss != 98 || pos.TakeProfit != 0 {
		t.Errorf("plan = %.2f/%.2f, want 98/0", pos.StopLoss, pos.TakeProfit)
	}

	// A stop above both entry and market is rejected.
	if _, err := lc.UpdateExitPlan(ctx, "p1", 200, 0); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Errorf("err = %v, want ErrInvalidOrder", err)
	}
}
