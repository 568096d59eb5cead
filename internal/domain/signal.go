package domain

import "time"

// SignalResult is the strongly-typed outcome of one strategy evaluation.
// Entry is the only field the engine acts on besides StopLoss/TakeProfit;
// everything else is opaque telemetry forwarded to observability.
type SignalResult struct {
	Entry      bool
	StopLoss   float64 // absolute price, 0 = let the engine derive from percentages
	TakeProfit float64 // absolute price, 0 = disabled
	Trigger    string  // short machine tag, e.g. "volume_spike"
	Reason     string  // human-readable diagnostic

	// Metadata carries provider-specific diagnostics (indicator readings,
	// near-miss distances). The engine never interprets these values.
	Metadata map[string]string
}

// SignalRecord is a diagnostic entry kept in the recent-signals ring and
// exposed on the admin API regardless of whether the signal fired.
type SignalRecord struct {
	Symbol    string            `json:"symbol"`
	Strategy  string            `json:"strategy"`
	Entry     bool              `json:"entry"`
	Trigger   string            `json:"trigger"`
	Reason    string            `json:"reason,omitempty"`
	Price     float64           `json:"price"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"time"`
}
