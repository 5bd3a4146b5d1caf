// Package strategy defines the Strategy interface for signal generation and
// provides a Registry of strategy factories keyed by strategy type.
package strategy

import (
	"fmt"
	"sort"

	"quantbt/internal/config"
	"quantbt/internal/domain"
)

// Strategy turns the observed market history into trading signals. An
// implementation sees only data strictly before the timestamp it is asked
// about.
type Strategy interface {
	// Name returns the configured instance name, unique within a run.
	Name() string

	// GenerateSignals returns the signals for one timestamp given the
	// observed window. The window is the caller's snapshot to hand out;
	// implementations must not retain it across calls.
	GenerateSignals(ts int64, observed domain.Window) ([]domain.Signal, error)
}

// Factory constructs a strategy instance from its resolved configuration.
type Factory func(cfg config.Strategy) (Strategy, error)

// Registry holds the known strategy types. Construction of an unknown type
// is an error; there is no fallback behavior.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for the given strategy type, replacing any
// previous registration.
func (r *Registry) Register(strategyType string, f Factory) {
	r.factories[strategyType] = f
}

// New builds a strategy instance for the configuration's type.
func (r *Registry) New(cfg config.Strategy) (Strategy, error) {
	f, ok := r.factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown strategy type %q", cfg.Type)
	}
	return f(cfg)
}

// List returns a sorted slice of all registered strategy types.
func (r *Registry) List() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
