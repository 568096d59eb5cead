package strategy

import (
	"math"
	"testing"

	"github.com/gitco/alphatrader/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
	}{
		{"last three", []float64{1, 2, 3, 4, 5}, 3, 4},
		{"whole series", []float64{2, 4, 6}, 3, 4},
		{"not enough data", []float64{1, 2}, 3, 0},
		{"zero period", []float64{1, 2, 3}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sma(tt.values, tt.period); !almostEqual(got, tt.want) {
				t.Errorf("sma = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStddev(t *testing.T) {
	// Classic textbook series with population stddev exactly 2.
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := stddev(values, 8); !almostEqual(got, 2) {
		t.Errorf("stddev = %v, want 2", got)
	}
	if got := stddev(values, 9); got != 0 {
		t.Errorf("stddev short series = %v, want 0", got)
	}
	if got := stddev([]float64{5, 5, 5, 5}, 4); got != 0 {
		t.Errorf("stddev flat series = %v, want 0", got)
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
	}{
		{"all gains", []float64{1, 2, 3, 4, 5}, 4, 100},
		{"all losses", []float64{5, 4, 3, 2, 1}, 4, 0},
		{"mixed 4:1", []float64{10, 11, 12, 11, 13}, 4, 80},
		{"flat", []float64{3, 3, 3, 3, 3}, 4, 50},
		{"not enough data", []float64{1, 2, 3}, 4, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rsi(tt.values, tt.period); !almostEqual(got, tt.want) {
				t.Errorf("rsi = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRangePct(t *testing.T) {
	candles := []domain.Candle{
		{High: 105, Low: 100},
		{High: 110, Low: 102},
		{High: 108, Low: 101},
	}
	if got := rangePct(candles); !almostEqual(got, 10) {
		t.Errorf("rangePct = %v, want 10", got)
	}
	if got := rangePct(nil); got != 0 {
		t.Errorf("rangePct empty = %v, want 0", got)
	}
	if got := rangePct([]domain.Candle{{High: 5, Low: 0}}); got != 0 {
		t.Errorf("rangePct non-positive low = %v, want 0", got)
	}
}

func TestCloses(t *testing.T) {
	candles := []domain.Candle{{Close: 1.5}, {Close: 2.5}}
	got := closes(candles)
	if len(got) != 2 || got[0] != 1.5 || got[1] != 2.5 {
		t.Errorf("closes = %v", got)
	}
}
