package engine

import (
	"context"
	"fmt"

	"github.com/gitco/alphatrader/internal/domain"
)

// AccountSnapshot is the equity picture the allocator and admission
// controller work from. All values are in quote currency.
type AccountSnapshot struct {
	EquityUSD float64
	FreeUSD   float64
	LockedUSD float64
	OpenCount int
}

// Accounting derives an AccountSnapshot from the exchange balance and the
// store's open positions. Locked capital is marked to the last seen price;
// positions without a mark yet fall back to committed capital.
type Accounting struct {
	exchange   domain.Exchange
	positions  domain.PositionStore
	safety     *SafetyMonitor
	quoteAsset string
}

// NewAccounting creates an Accounting service.
func NewAccounting(exchange domain.Exchange, positions domain.PositionStore, safety *SafetyMonitor, quoteAsset string) *Accounting {
	return &Accounting{
		exchange:   exchange,
		positions:  positions,
		safety:     safety,
		quoteAsset: quoteAsset,
	}
}

// Snapshot returns the current account snapshot together with the open
// positions it was computed from, so callers reuse one store read per cycle.
func (a *Accounting) Snapshot(ctx context.Context) (AccountSnapshot, []domain.Position, error) {
	bal, err := a.exchange.FetchBalance(ctx)
	a.safety.Record(err)
	if err != nil {
		return AccountSnapshot{}, nil, fmt.Errorf("accounting: fetch balance: %w", err)
	}

	open, err := a.positions.ListOpen(ctx)
	if err != nil {
		return AccountSnapshot{}, nil, fmt.Errorf("accounting: list open positions: %w", err)
	}

	var locked float64
	for _, p := range open {
		if p.CurrentPrice > 0 {
			locked += p.Notional()
		} else {
			locked += p.UsedUSD
		}
	}

	free := bal.Free[a.quoteAsset]
	snap := AccountSnapshot{
		EquityUSD: money(free + locked),
		FreeUSD:   money(free),
		LockedUSD: money(locked),
		OpenCount: len(open),
	}
	return snap, open, nil
}
