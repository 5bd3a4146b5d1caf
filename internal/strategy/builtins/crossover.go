// Package builtins provides the strategy implementations that ship with the
// engine and a helper to register them all.
package builtins

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*OpenCrossover)(nil)

// TypeOpenCrossover is the registry key for the open-price crossover
// strategy.
const TypeOpenCrossover = "open_crossover"

// Register adds every builtin strategy type to the registry.
func Register(r *strategy.Registry) {
	r.Register(TypeOpenCrossover, NewOpenCrossover)
}

// OpenCrossover goes long its target symbol when the short-window mean of
// the target's open prices crosses above the long-window mean of the
// reference symbol's opens. The first configured symbol is the target; the
// second, when present, is the reference, otherwise the target references
// itself.
type OpenCrossover struct {
	name      string
	target    domain.Symbol
	reference domain.Symbol
	short     int
	long      int
	strength  float64
}

// NewOpenCrossover builds an OpenCrossover from its configuration. Settings:
// short_window (default 5), long_window (default 20), strength (default 1).
func NewOpenCrossover(cfg config.Strategy) (strategy.Strategy, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("strategy %s: no symbols configured", cfg.Name)
	}
	target := cfg.Symbols[0]
	reference := target
	if len(cfg.Symbols) > 1 {
		reference = cfg.Symbols[1]
	}

	short := int(settingOr(cfg.Settings, "short_window", 5))
	long := int(settingOr(cfg.Settings, "long_window", 20))
	if short < 1 || long < 1 {
		return nil, fmt.Errorf("strategy %s: windows must be positive, got %d/%d", cfg.Name, short, long)
	}
	if short >= long {
		return nil, fmt.Errorf("strategy %s: short window %d must be below long window %d", cfg.Name, short, long)
	}

	return &OpenCrossover{
		name:      cfg.Name,
		target:    target,
		reference: reference,
		short:     short,
		long:      long,
		strength:  settingOr(cfg.Settings, "strength", 1.0),
	}, nil
}

func settingOr(settings map[string]float64, key string, def float64) float64 {
	if v, ok := settings[key]; ok {
		return v
	}
	return def
}

// Name returns the configured instance name.
func (s *OpenCrossover) Name() string { return s.name }

// GenerateSignals emits a long signal on the bar where the short mean first
// exceeds the long mean. Crossing is detected against the previous bar's
// means, so a persistent spread does not re-signal every day.
func (s *OpenCrossover) GenerateSignals(ts int64, observed domain.Window) ([]domain.Signal, error) {
	targetOpens := opens(observed, s.target)
	referenceOpens := opens(observed, s.reference)

	// One extra bar is needed to evaluate the previous day's means.
	if len(targetOpens) < s.short+1 || len(referenceOpens) < s.long+1 {
		return nil, nil
	}

	shortNow, err := stats.Mean(tail(targetOpens, s.short))
	if err != nil {
		return nil, err
	}
	longNow, err := stats.Mean(tail(referenceOpens, s.long))
	if err != nil {
		return nil, err
	}
	shortPrev, err := stats.Mean(tail(targetOpens[:len(targetOpens)-1], s.short))
	if err != nil {
		return nil, err
	}
	longPrev, err := stats.Mean(tail(referenceOpens[:len(referenceOpens)-1], s.long))
	if err != nil {
		return nil, err
	}

	if shortNow > longNow && shortPrev <= longPrev {
		return []domain.Signal{{
			Timestamp: ts,
			Symbol:    s.target,
			Type:      domain.SignalLong,
			Strength:  s.strength,
			Strategy:  s.name,
		}}, nil
	}
	return nil, nil
}

func opens(observed domain.Window, sym domain.Symbol) []float64 {
	entries := observed[domain.SeriesKeyFor(sym, domain.DataTypeStock)]
	out := make([]float64, 0, len(entries))
	for _, e := range entries {
		if open, ok := e.Row["Open"]; ok {
			out = append(out, open)
		}
	}
	return out
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
