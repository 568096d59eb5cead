// Package engine implements the trading core: capital allocation, admission
// control, the position lifecycle state machine, store/exchange
// reconciliation, the scan-execute pipeline, and the safety monitor.
package engine

import "math"

// round6 rounds a monetary value to six decimal places before persisting.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// sanitize replaces NaN and infinities with zero. Malformed upstream ticker
// data must never reach the store.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// money sanitizes and rounds in one step.
func money(v float64) float64 {
	return round6(sanitize(v))
}
