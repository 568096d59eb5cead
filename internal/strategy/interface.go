// Package strategy defines the signal-provider contract and the entry
// strategies shipped with the bot. Providers are pure evaluators: they read a
// symbol's recent candles and answer whether to enter, optionally suggesting
// absolute stop/target levels. All position management happens in the engine.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gitco/alphatrader/internal/domain"
)

// SignalProvider is the contract every entry strategy implements.
type SignalProvider interface {
	// Name returns the provider's registry name; it is recorded on every
	// position the provider opens.
	Name() string

	// CheckSignal evaluates the symbol's recent candles (oldest first) and
	// returns the typed result. A nil error with Entry=false is the normal
	// "no setup" outcome; errors are reserved for malformed input.
	CheckSignal(symbol string, candles []domain.Candle) (domain.SignalResult, error)
}

// Registry manages a named collection of signal providers that can be looked
// up at runtime. It is safe for concurrent use.
type Registry struct {
	providers map[string]SignalProvider
	mu        sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]SignalProvider),
	}
}

// Register adds a provider under its own name, replacing any existing entry.
func (r *Registry) Register(p SignalProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name. It returns an error when the name is not
// registered.
func (r *Registry) Get(name string) (SignalProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return p, nil
}

// List returns the names of all registered providers in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
