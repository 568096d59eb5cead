package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/gitco/alphatrader/internal/config"
	"github.com/gitco/alphatrader/internal/domain"
)

func testWatcher(ex *fakeExchange, store *fakePositionStore) *Watcher {
	cfg := config.Defaults()
	safety := NewSafetyMonitor(cfg.Risk.FailureThreshold, cfg.Risk.PauseDuration.Duration, testLogger())
	lc := testLifecycle(ex, store, newFakeStateStore(), &fakeAuditStore{})
	return NewWatcher(ex, store, lc, safety, testMetrics(), cfg.Lifecycle, testLogger())
}

func TestBreakevenShift(t *testing.T) {
	w := &Watcher{cfg: config.Defaults().Lifecycle} // breakeven at +1.2%

	pos := domain.Position{
		EntryPrice:   100,
		StopLoss:     95,
		HighestPrice: 103,
	}
	got := w.applyRatchets(pos, 103)
	if got.StopLoss != 100 {
		t.Errorf("stop = %.2f, want shifted to entry 100", got.StopLoss)
	}

	// Below the threshold nothing moves.
	pos = domain.Position{EntryPrice: 100, StopLoss: 95, HighestPrice: 100.5}
	got = w.applyRatchets(pos, 100.5)
	if got.StopLoss != 95 {
		t.Errorf("stop = %.2f, want unchanged 95", got.StopLoss)
	}
}

func TestTrailingStopArmsAndRatchets(t *testing.T) {
	w := &Watcher{cfg: config.Defaults().Lifecycle} // arm at +1.5%, trail 2%

	pos := domain.Position{EntryPrice: 100, HighestPrice: 103}
	got := w.applyRatchets(pos, 103)
	if !got.TrailActive {
		t.Fatal("trail not armed at +3% highest gain")
	}
	want := 103 * 0.98
	if math.Abs(got.TrailStop-want) > 1e-6 {
		t.Errorf("trail = %.6f, want %.6f", got.TrailStop, want)
	}

	// A pullback never lowers the armed trail.
	got.HighestPrice = 103
	got2 := w.applyRatchets(got, 101)
	if got2.TrailStop < got.TrailStop {
		t.Errorf("trail moved down: %.6f -> %.6f", got.TrailStop, got2.TrailStop)
	}

	// A new high ratchets it up.
	got2.HighestPrice = 105
	got3 := w.applyRatchets(got2, 105)
	want = 105 * 0.98
	if math.Abs(got3.TrailStop-want) > 1e-6 {
		t.Errorf("trail after new high = %.6f, want %.6f", got3.TrailStop, want)
	}
}

func TestExitTriggerPriority(t *testing.T) {
	w := &Watcher{cfg: config.Defaults().Lifecycle}

	pos := domain.Position{EntryPrice: 100, StopLoss: 95, TakeProfit: 110}
	if got := w.exitTrigger(pos, 94); got != "stop_loss" {
		t.Errorf("trigger = %q, want stop_loss", got)
	}
	if got := w.exitTrigger(pos, 111); got != "take_profit" {
		t.Errorf("trigger = %q, want take_profit", got)
	}

	pos = domain.Position{EntryPrice: 100, TrailActive: true, TrailStop: 102}
	if got := w.exitTrigger(pos, 101); got != "trailing_stop" {
		t.Errorf("trigger = %q, want trailing_stop", got)
	}
	if got := w.exitTrigger(pos, 103); got != "" {
		t.Errorf("trigger = %q, want none", got)
	}
}

func TestTickTimeExitBeatsPriceLogic(t *testing.T) {
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 200}, // deep in profit
	}}
	store := newFakePositionStore()
	store.Create(context.Background(), domain.Position{
		ID:           "p1",
		Symbol:       "SOL/USDT",
		EntryPrice:   100,
		Quantity:     1,
		CurrentPrice: 200,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     time.Now().Add(-13 * time.Hour), // past the 12h max hold
	})
	w := testWatcher(ex, store)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	pos, _ := store.GetByID(context.Background(), "p1")
	if pos.IsOpen() {
		t.Error("stale position survived the time exit")
	}
	if len(ex.sells) != 1 {
		t.Errorf("sells = %d, want 1", len(ex.sells))
	}
}

func TestTickStopLossCloses(t *testing.T) {
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 94},
	}}
	store := newFakePositionStore()
	store.Create(context.Background(), domain.Position{
		ID:           "p1",
		Symbol:       "SOL/USDT",
		EntryPrice:   100,
		Quantity:     1,
		CurrentPrice: 100,
		HighestPrice: 100,
		StopLoss:     95,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     time.Now(),
	})
	w := testWatcher(ex, store)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	pos, _ := store.GetByID(context.Background(), "p1")
	if pos.IsOpen() {
		t.Error("position open after stop-loss cross")
	}
	if pos.ExitPrice != 94 {
		t.Errorf("exit price = %.2f, want 94", pos.ExitPrice)
	}
}

func TestTickUpdatesMarkWithoutTrigger(t *testing.T) {
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 101},
	}}
	store := newFakePositionStore()
	store.Create(context.Background(), domain.Position{
		ID:           "p1",
		Symbol:       "SOL/USDT",
		EntryPrice:   100,
		Quantity:     2,
		CurrentPrice: 100,
		HighestPrice: 100,
		StopLoss:     95,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     time.Now(),
	})
	w := testWatcher(ex, store)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	pos, _ := store.GetByID(context.Background(), "p1")
	if !pos.IsOpen() {
		t.Fatal("position closed without a trigger")
	}
	if pos.CurrentPrice != 101 || pos.HighestPrice != 101 {
		t.Errorf("mark = %.2f / high = %.2f, want 101 / 101", pos.CurrentPrice, pos.HighestPrice)
	}
	if math.Abs(pos.UnrealizedPnL-2) > 1e-6 {
		t.Errorf("unrealized = %.6f, want 2", pos.UnrealizedPnL)
	}
}

func TestTickDoesNotReopenConcurrentlyClosedPosition(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{tickers: map[string]domain.Ticker{
		"SOL/USDT": {Symbol: "SOL/USDT", Last: 105},
	}}
	store := newFakePositionStore()
	store.Create(ctx, domain.Position{
		ID:           "p1",
		Symbol:       "SOL/USDT",
		EntryPrice:   100,
		Quantity:     1,
		CurrentPrice: 100,
		HighestPrice: 100,
		StopLoss:     90,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     time.Now(),
	})
	w := testWatcher(ex, store)

	// The reconciler closes the row after the watcher has read its open copy.
	stale, _ := store.GetByID(ctx, "p1")
	if _, err := store.CloseIfOpen(ctx, "p1", 104, 4, time.Now()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := w.tickPosition(ctx, stale); err != nil {
		t.Fatalf("tick: %v", err)
	}

	pos, _ := store.GetByID(ctx, "p1")
	if pos.IsOpen() {
		t.Fatal("mark refresh reopened a closed position")
	}
	if pos.ExitPrice != 104 {
		t.Errorf("exit price = %.2f, want the reconciler's 104", pos.ExitPrice)
	}
}
