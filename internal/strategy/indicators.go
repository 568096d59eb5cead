package strategy

import (
	"math"

	"github.com/gitco/alphatrader/internal/domain"
)

// closes extracts the close series from candles.
func closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// sma returns the simple moving average of the last period values. It returns
// 0 when fewer than period values are available.
func sma(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// stddev returns the population standard deviation of the last period values.
func stddev(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	mean := sma(values, period)
	var sq float64
	for _, v := range values[len(values)-period:] {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(period))
}

// rsi computes the Relative Strength Index over the last period deltas using
// a simple (non-Wilder) rolling mean, matching the reference backtests.
// Returns 50 when there is not enough data to form an opinion.
func rsi(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 50
	}
	var gain, loss float64
	start := len(values) - period
	for i := start; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs))
}

// rangePct returns the high/low range of the candles as a percentage of the
// low. Returns 0 when the window is empty or the low is non-positive.
func rangePct(candles []domain.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	high := candles[0].High
	low := candles[0].Low
	for _, c := range candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	if low <= 0 {
		return 0
	}
	return (high - low) / low * 100
}
