package engine

import (
	"math"
	"testing"

	"github.com/gitco/alphatrader/internal/config"
)

func testRisk() config.RiskConfig {
	return config.Defaults().Risk
}

func TestAllocatorMaxPositions(t *testing.T) {
	a := NewAllocator(testRisk()) // slot $30, clamp [2, 20]

	tests := []struct {
		equity float64
		want   int
	}{
		{0, 2},      // clamped to minimum
		{29, 2},     // below one slot, still minimum
		{60, 2},     // exactly two slots
		{200, 6},    // floor(200/30)
		{599, 19},   // floor, not round
		{600, 20},   // exactly at cap
		{10_000, 20}, // clamped to maximum
	}
	for _, tt := range tests {
		if got := a.MaxPositions(tt.equity); got != tt.want {
			t.Errorf("MaxPositions(%.0f) = %d, want %d", tt.equity, got, tt.want)
		}
	}
}

func TestAllocatorTradeSizeDynamic(t *testing.T) {
	a := NewAllocator(testRisk())

	// equity 200 -> 6 slots, all free: (190 * 0.95) / 6
	got := a.TradeSize(200, 190, 0, 0)
	want := 190 * 0.95 / 6
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("TradeSize = %.6f, want %.6f", got, want)
	}

	// remaining slots shrink as positions open
	got = a.TradeSize(200, 100, 4, 0)
	want = 100 * 0.95 / 2
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("TradeSize with 4 open = %.6f, want %.6f", got, want)
	}
}

func TestAllocatorTradeSizeAtCapacity(t *testing.T) {
	a := NewAllocator(testRisk())

	if got := a.TradeSize(200, 190, 6, 0); got != 0 {
		t.Errorf("TradeSize at capacity = %.2f, want 0", got)
	}
	// operator override does not bypass the position cap
	if got := a.TradeSize(200, 190, 6, 50); got != 0 {
		t.Errorf("TradeSize at capacity with override = %.2f, want 0", got)
	}
}

func TestAllocatorTradeSizeOperatorOverride(t *testing.T) {
	a := NewAllocator(testRisk())

	if got := a.TradeSize(200, 190, 0, 50); got != 50 {
		t.Errorf("override = %.2f, want 50", got)
	}
	// override is still clamped by the hard order cap
	if got := a.TradeSize(10_000, 9_000, 0, 1_000); got != 120 {
		t.Errorf("override above cap = %.2f, want 120", got)
	}
}

func TestAllocatorTradeSizeNeverExceedsFreeBuffer(t *testing.T) {
	a := NewAllocator(testRisk())

	// minimum trade would overdraw a nearly empty account
	got := a.TradeSize(200, 2, 1, 0)
	ceiling := 2 * 0.98
	if got > ceiling+1e-9 {
		t.Errorf("TradeSize %.6f exceeds free ceiling %.6f", got, ceiling)
	}

	// property: for a sweep of balances the result respects the buffer
	for free := 1.0; free < 300; free += 7.3 {
		size := a.TradeSize(free+50, free, 1, 0)
		if size > free*0.98+1e-9 {
			t.Fatalf("free=%.2f: size %.6f exceeds %.6f", free, size, free*0.98)
		}
	}
}
