package engine

import (
	"math"

	"github.com/gitco/alphatrader/internal/config"
)

// Allocator computes the dynamic position cap and per-trade order size from
// the current account snapshot. It is pure: all state arrives as arguments.
type Allocator struct {
	cfg config.RiskConfig
}

// NewAllocator creates an Allocator with the given risk parameters.
func NewAllocator(cfg config.RiskConfig) *Allocator {
	return &Allocator{cfg: cfg}
}

// MaxPositions derives the position cap from equity: one slot per
// CapitalPerSlot of equity, clamped to [MinPositions, MaxPositions]. Position
// count grows with the account instead of being fixed.
func (a *Allocator) MaxPositions(equityUSD float64) int {
	slots := int(math.Floor(equityUSD / a.cfg.CapitalPerSlot))
	if slots < a.cfg.MinPositions {
		return a.cfg.MinPositions
	}
	if slots > a.cfg.MaxPositions {
		return a.cfg.MaxPositions
	}
	return slots
}

// TradeSize returns the USD size for the next entry, or 0 when no capacity
// remains. operatorUSD is the manual per-trade override from the admin
// surface; when positive it takes precedence over the dynamic formula but
// stays subject to the hard order cap and the free-capital clamp.
//
// The result never exceeds free * FreeBuffer, so fees deducted at fill time
// cannot overdraw the account.
func (a *Allocator) TradeSize(equityUSD, freeUSD float64, openCount int, operatorUSD float64) float64 {
	maxPositions := a.MaxPositions(equityUSD)
	if openCount >= maxPositions {
		return 0
	}

	var size float64
	if operatorUSD > 0 {
		size = operatorUSD
	} else {
		remaining := maxPositions - openCount
		if remaining < 1 {
			remaining = 1
		}
		size = (freeUSD * a.cfg.UtilizationTarget) / float64(remaining)
		if size < a.cfg.MinTradeUSD {
			size = a.cfg.MinTradeUSD
		}
	}

	if size > a.cfg.MaxOrderUSD {
		size = a.cfg.MaxOrderUSD
	}
	if ceiling := freeUSD * a.cfg.FreeBuffer; size > ceiling {
		size = ceiling
	}
	return money(size)
}
