package strategy

import (
	"fmt"

	"github.com/gitco/alphatrader/internal/domain"
)

// BollingerReversionConfig holds the oversold-dip thresholds.
type BollingerReversionConfig struct {
	Period      int     // Bollinger/SMA period
	StdDevMult  float64 // band width in standard deviations
	RSIPeriod   int
	RSIOversold float64
	StopLossPct float64
}

// DefaultBollingerReversionConfig returns the standard (20, 2) / RSI 14
// parameters.
func DefaultBollingerReversionConfig() BollingerReversionConfig {
	return BollingerReversionConfig{
		Period:      20,
		StdDevMult:  2.0,
		RSIPeriod:   14,
		RSIOversold: 30,
		StopLossPct: 4.0,
	}
}

// BollingerReversion enters on oversold dips: close below the lower Bollinger
// band while RSI confirms the oversold condition.
type BollingerReversion struct {
	cfg BollingerReversionConfig
}

// NewBollingerReversion creates a BollingerReversion provider.
func NewBollingerReversion(cfg BollingerReversionConfig) *BollingerReversion {
	return &BollingerReversion{cfg: cfg}
}

// Name implements SignalProvider.
func (b *BollingerReversion) Name() string { return "bollinger_reversion" }

// CheckSignal implements SignalProvider.
func (b *BollingerReversion) CheckSignal(symbol string, candles []domain.Candle) (domain.SignalResult, error) {
	need := b.cfg.Period
	if b.cfg.RSIPeriod+1 > need {
		need = b.cfg.RSIPeriod + 1
	}
	if len(candles) < need {
		return domain.SignalResult{Trigger: "insufficient_data"}, nil
	}

	cs := closes(candles)
	last := cs[len(cs)-1]

	mid := sma(cs, b.cfg.Period)
	band := stddev(cs, b.cfg.Period) * b.cfg.StdDevMult
	lower := mid - band
	r := rsi(cs, b.cfg.RSIPeriod)

	res := domain.SignalResult{
		Trigger: "bollinger_reversion",
		Metadata: map[string]string{
			"lower_band": fmt.Sprintf("%.6f", lower),
			"rsi":        fmt.Sprintf("%.1f", r),
		},
	}

	isDip := last < lower
	isOversold := r < b.cfg.RSIOversold
	if !isDip || !isOversold {
		res.Reason = "no oversold dip"
		return res, nil
	}

	res.Entry = true
	res.Reason = fmt.Sprintf("dip below band, rsi %.1f", r)
	if b.cfg.StopLossPct > 0 {
		res.StopLoss = last * (1 - b.cfg.StopLossPct/100)
	}
	// Mean reversion targets the middle band.
	if mid > last {
		res.TakeProfit = mid
	}
	return res, nil
}
