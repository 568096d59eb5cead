package strategy

import (
	"math"
	"testing"

	"github.com/gitco/alphatrader/internal/domain"
)

func candlesFromCloses(closes []float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out
}

func TestBollingerReversionEntry(t *testing.T) {
	b := NewBollingerReversion(DefaultBollingerReversionConfig())

	// Nineteen flat bars then a sharp 10% dip: the close lands well below the
	// lower band and the RSI window sees only the one big loss.
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	closes[19] = 90

	res, err := b.CheckSignal("SOL/USDT", candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Entry {
		t.Fatalf("no entry, reason %q", res.Reason)
	}
	wantStop := 90 * 0.96
	if math.Abs(res.StopLoss-wantStop) > 1e-9 {
		t.Errorf("stop = %v, want %v", res.StopLoss, wantStop)
	}
	// Mean reversion targets the middle band: (19*100 + 90) / 20.
	if math.Abs(res.TakeProfit-99.5) > 1e-9 {
		t.Errorf("target = %v, want 99.5", res.TakeProfit)
	}
}

func TestBollingerReversionFlatMarket(t *testing.T) {
	b := NewBollingerReversion(DefaultBollingerReversionConfig())

	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}

	res, err := b.CheckSignal("SOL/USDT", candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Entry {
		t.Fatal("entry in a flat market")
	}
	if res.Reason != "no oversold dip" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestBollingerReversionUptrendDip(t *testing.T) {
	b := NewBollingerReversion(DefaultBollingerReversionConfig())

	// A steady uptrend with a last-bar wobble: RSI stays far from oversold, so
	// no entry even though the close sits under the recent mean.
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	closes[20] = 118

	res, err := b.CheckSignal("SOL/USDT", candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Entry {
		t.Fatal("entry without oversold confirmation")
	}
}

func TestBollingerReversionInsufficientData(t *testing.T) {
	b := NewBollingerReversion(DefaultBollingerReversionConfig())

	res, err := b.CheckSignal("SOL/USDT", candlesFromCloses([]float64{100, 101, 99}))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Entry || res.Trigger != "insufficient_data" {
		t.Errorf("got %+v, want insufficient_data non-entry", res)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewAlphaHunter(DefaultAlphaHunterConfig()))
	reg.Register(NewBollingerReversion(DefaultBollingerReversionConfig()))

	p, err := reg.Get("alpha_hunter")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name() != "alpha_hunter" {
		t.Errorf("name = %q", p.Name())
	}

	if _, err := reg.Get("momentum"); err == nil {
		t.Error("unknown provider did not error")
	}

	names := reg.List()
	if len(names) != 2 || names[0] != "alpha_hunter" || names[1] != "bollinger_reversion" {
		t.Errorf("list = %v", names)
	}
}
