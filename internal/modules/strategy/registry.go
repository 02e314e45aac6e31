package strategy

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Registry holds the fixed set of strategy adapters, built once at startup.
// There is no runtime registration after construction.
type Registry struct {
	adapters map[string]Adapter
	log      zerolog.Logger
}

// NewRegistry creates a registry with all built-in adapters registered
func NewRegistry(log zerolog.Logger) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter),
		log:      log.With().Str("component", "strategy_registry").Logger(),
	}

	for _, a := range []Adapter{
		NewRSIAdapter(14, 30, 70),
		NewMACDAdapter(12, 26, 9),
		NewBollingerAdapter(20, 2),
		NewSMACrossAdapter(10, 20),
		NewMomentumBreakoutAdapter(20, 0.02, 1.5),
		NewMeanReversionAdapter([]int{5, 10, 20, 50}, 0.015),
		NewVolumeConfirmationAdapter(20, 2.0, 10),
	} {
		r.adapters[a.Name()] = a
	}

	r.log.Info().Int("count", len(r.adapters)).Msg("Strategy registry built")
	return r
}

// Get returns the adapter for a strategy name
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy: %q (available: %v)", name, r.Names())
	}
	return a, nil
}

// Resolve maps a list of strategy names to adapters, failing on the first
// unknown name
func (r *Registry) Resolve(names []string) ([]Adapter, error) {
	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		a, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Names returns all registered strategy names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
