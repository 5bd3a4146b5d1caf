package data

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/util"
)

// Manager loads every configured series for the run's universe in parallel
// and indexes the rows by timestamp.
type Manager struct {
	cfg     *config.Global
	sources map[string]Source
	log     *slog.Logger
}

// NewManager wires the manager. Every provider binding must resolve to a
// registered source; an unresolvable binding is a configuration error
// surfaced here rather than mid-load.
func NewManager(cfg *config.Global, sources map[string]Source, log *slog.Logger) (*Manager, error) {
	for _, binding := range cfg.Providers {
		if _, ok := sources[binding.Provider]; !ok {
			return nil, fmt.Errorf("provider %q for %s/%s is not registered",
				binding.Provider, binding.AssetClass, binding.DataType)
		}
	}
	return &Manager{cfg: cfg, sources: sources, log: log}, nil
}

// seriesResult is one fetched series, already filtered to calendar days.
type seriesResult struct {
	key     domain.SeriesKey
	entries []domain.Entry
}

// Load fetches every (symbol, binding) series concurrently and merges the
// rows into a timestamp-indexed data set. A failed fetch is recoverable: the
// series is loaded empty and a warning is logged, so one bad symbol does not
// abort the run.
func (m *Manager) Load(ctx context.Context) (*domain.DataSet, error) {
	symbols := m.cfg.Registry.Symbols()

	// One task per symbol; each task fetches all bindings for its asset class.
	results := make([][]seriesResult, len(symbols))
	start := time.Now()

	err := util.ForEach(ctx, m.cfg.Workers, len(symbols), func(i int) {
		sym := symbols[i]
		for _, binding := range m.cfg.Providers {
			if binding.AssetClass != sym.AssetClass {
				continue
			}
			key := domain.SeriesKeyFor(sym, binding.DataType)
			entries, ferr := m.fetchSeries(ctx, binding, sym)
			if ferr != nil {
				m.log.Warn("loading series failed, continuing with empty data",
					"ticker", sym.Ticker,
					"data_type", binding.DataType,
					"provider", binding.Provider,
					"error", ferr)
				entries = nil
			}
			results[i] = append(results[i], seriesResult{key: key, entries: entries})
		}
	})
	if err != nil {
		return nil, err
	}

	set := domain.NewDataSet()
	rows := 0
	for _, perSymbol := range results {
		for _, res := range perSymbol {
			for _, e := range res.entries {
				set.Put(e.Timestamp, res.key, e.Row)
				rows++
			}
		}
	}
	set.Finalize()

	m.log.Info("data load complete",
		"symbols", len(symbols),
		"timestamps", set.Len(),
		"rows", rows,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return set, nil
}

// fetchSeries pulls one series over the calendar's full range and keeps only
// rows that land on a trading timestamp.
func (m *Manager) fetchSeries(ctx context.Context, binding config.ProviderBinding, sym domain.Symbol) ([]domain.Entry, error) {
	source := m.sources[binding.Provider]
	times := m.cfg.Calendar.Timestamps()
	if len(times) == 0 {
		return nil, nil
	}

	entries, err := source.Fetch(ctx, binding.DataType, sym, times[0], times[len(times)-1])
	if err != nil {
		return nil, err
	}

	kept := entries[:0]
	for _, e := range entries {
		if m.cfg.Calendar.Contains(e.Timestamp) {
			kept = append(kept, e)
		}
	}
	return kept, nil
}
