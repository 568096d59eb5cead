package strategy

import (
	"fmt"

	"github.com/gitco/alphatrader/internal/domain"
)

// AlphaHunterConfig holds the tunable thresholds for the pre-pump detector.
type AlphaHunterConfig struct {
	LookbackBars    int     // consolidation window, in bars
	MaxRangePct     float64 // reject when 24h range exceeds this
	MinVolumeMult   float64 // last bar volume vs lookback average
	MaxChangePct    float64 // reject when already pumped beyond this
	StopLossPct     float64 // suggested stop distance below entry
}

// DefaultAlphaHunterConfig returns the tuned production thresholds.
func DefaultAlphaHunterConfig() AlphaHunterConfig {
	return AlphaHunterConfig{
		LookbackBars:  24,
		MaxRangePct:   10.0,
		MinVolumeMult: 3.0,
		MaxChangePct:  5.0,
		StopLossPct:   4.0,
	}
}

// AlphaHunter looks for "pre-pump" signatures on hourly candles: a tight
// consolidation, a sudden volume spike, and a price that has not already run.
type AlphaHunter struct {
	cfg AlphaHunterConfig
}

// NewAlphaHunter creates an AlphaHunter with the given thresholds.
func NewAlphaHunter(cfg AlphaHunterConfig) *AlphaHunter {
	return &AlphaHunter{cfg: cfg}
}

// Name implements SignalProvider.
func (a *AlphaHunter) Name() string { return "alpha_hunter" }

// CheckSignal implements SignalProvider.
func (a *AlphaHunter) CheckSignal(symbol string, candles []domain.Candle) (domain.SignalResult, error) {
	if len(candles) < a.cfg.LookbackBars {
		return domain.SignalResult{Trigger: "insufficient_data"}, nil
	}

	window := candles[len(candles)-a.cfg.LookbackBars:]
	last := candles[len(candles)-1]

	res := domain.SignalResult{
		Trigger:  "alpha_hunter",
		Metadata: map[string]string{},
	}

	// 1. Consolidation: the lookback range must be tight.
	priceRange := rangePct(window)
	res.Metadata["range_pct"] = fmt.Sprintf("%.2f", priceRange)
	if priceRange <= 0 || priceRange > a.cfg.MaxRangePct {
		res.Reason = "range too wide"
		return res, nil
	}

	// 2. Volume spike: last bar vs the window average.
	var volSum float64
	for _, c := range window {
		volSum += c.Volume
	}
	avgVol := volSum / float64(len(window))
	if avgVol == 0 {
		res.Reason = "no volume"
		return res, nil
	}
	volMult := last.Volume / avgVol
	res.Metadata["vol_mult"] = fmt.Sprintf("%.1f", volMult)
	if volMult < a.cfg.MinVolumeMult {
		res.Reason = "no volume spike"
		return res, nil
	}

	// 3. Not already pumped: change over the window stays modest.
	open24 := window[0].Open
	if open24 <= 0 {
		res.Reason = "bad open"
		return res, nil
	}
	change := (last.Close - open24) / open24 * 100
	res.Metadata["change_pct"] = fmt.Sprintf("%.2f", change)
	if change > a.cfg.MaxChangePct {
		res.Reason = "already pumped"
		return res, nil
	}

	res.Entry = true
	res.Reason = fmt.Sprintf("vol %.1fx in %.1f%% range", volMult, priceRange)
	if a.cfg.StopLossPct > 0 {
		res.StopLoss = last.Close * (1 - a.cfg.StopLossPct/100)
	}
	return res, nil
}
