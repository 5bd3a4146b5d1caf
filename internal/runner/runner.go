// Package runner drives a full run: it wires the data pipeline, the
// per-strategy portfolio processors, the cross-strategy aggregation, and the
// performance attribution into the simulation loop.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"quantbt/internal/config"
	"quantbt/internal/data"
	"quantbt/internal/domain"
	"quantbt/internal/performance"
	"quantbt/internal/portfolio"
	"quantbt/internal/store"
	"quantbt/internal/strategy"
)

// Deps are the collaborators a mode runs with. RunStore may be nil, in which
// case nothing is persisted to the run database.
type Deps struct {
	Data     *data.Manager
	Registry *strategy.Registry
	RunStore store.RunStore
	Log      *slog.Logger
}

// Mode is a runnable engine mode.
type Mode interface {
	Run(ctx context.Context) error
}

// New dispatches on the configured mode. Unknown modes are a configuration
// error.
func New(cfg *config.Global, deps Deps) (Mode, error) {
	switch cfg.Mode {
	case domain.ModeBacktest:
		return NewBacktest(cfg, deps), nil
	case domain.ModeLive:
		return NewLive(cfg, deps.Log), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// Backtest replays the run window chronologically.
type Backtest struct {
	cfg  *config.Global
	deps Deps
}

// Compile-time interface checks.
var _ Mode = (*Backtest)(nil)
var _ Mode = (*Live)(nil)

// NewBacktest creates the backtest mode.
func NewBacktest(cfg *config.Global, deps Deps) *Backtest {
	return &Backtest{cfg: cfg, deps: deps}
}

// book pairs one strategy instance with its portfolio processor.
type book struct {
	strat     strategy.Strategy
	portfolio *portfolio.Processor
}

// Run loads the data, walks the run window step by step, and writes the
// end-of-run report and CSV output.
func (b *Backtest) Run(ctx context.Context) error {
	log := b.deps.Log

	set, err := b.deps.Data.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading data: %w", err)
	}

	processor, err := data.NewProcessor(b.cfg, set, log)
	if err != nil {
		return err
	}
	it, err := processor.Iterator(ctx)
	if err != nil {
		return err
	}

	books, err := b.buildBooks()
	if err != nil {
		return err
	}

	manager := portfolio.NewManager()
	perf := performance.NewManager(b.cfg.RunEnd, log)

	steps := 0
	for {
		step, ok := it.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.runStep(ctx, step, books, manager, perf); err != nil {
			return fmt.Errorf("step at %d: %w", step.Timestamp, err)
		}
		steps++
	}
	log.Info("simulation complete", "run", b.cfg.RunName, "steps", steps)

	return b.writeResults(books, perf)
}

// buildBooks instantiates every configured strategy with its own portfolio
// processor.
func (b *Backtest) buildBooks() ([]book, error) {
	books := make([]book, 0, len(b.cfg.Strategies))
	for _, sc := range b.cfg.Strategies {
		instance, err := b.deps.Registry.New(sc)
		if err != nil {
			return nil, err
		}
		books = append(books, book{
			strat:     instance,
			portfolio: portfolio.NewProcessor(sc, b.deps.Log),
		})
	}
	return books, nil
}

// runStep advances every allocated strategy one timestamp and folds the
// results into the aggregates. A simulated day with no allocation entry
// aborts the run.
func (b *Backtest) runStep(ctx context.Context, step data.Step, books []book, manager *portfolio.Manager, perf *performance.Manager) error {
	allocation, ok := b.cfg.Allocations[step.Timestamp]
	if !ok {
		return fmt.Errorf("no allocation entry for timestamp %d", step.Timestamp)
	}

	attrs := make([]domain.StrategyAttribution, 0, len(books))
	for _, bk := range books {
		name := bk.portfolio.Strategy().Name
		alloc, allocated := allocation[name]
		if !allocated {
			continue
		}

		signals, err := bk.strat.GenerateSignals(step.Timestamp, step.Observed)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", name, err)
		}

		trades := bk.portfolio.TradesFromSignals(signals, step.Live, alloc.Weight)
		executed, err := bk.portfolio.ExecuteTrades(step.Timestamp, trades, step.Live)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", name, err)
		}
		bk.portfolio.RecordSnapshot(step.Timestamp)
		positions := bk.portfolio.Positions()

		attrs = append(attrs, domain.StrategyAttribution{
			Strategy:  name,
			Trades:    executed,
			Positions: positions,
		})

		if err := b.persistStep(ctx, name, step.Timestamp, signals, executed, positions, bk.portfolio.Cash()); err != nil {
			return err
		}
	}

	if err := manager.Update(attrs); err != nil {
		return err
	}
	perf.Update(step.Timestamp, step.NextTimestamp, step.Future,
		manager.Trades(), manager.Positions(),
		manager.TradesByStrategy(), manager.PositionsByStrategy())
	return nil
}

func (b *Backtest) persistStep(ctx context.Context, strategyName string, ts int64, signals []domain.Signal, trades []domain.Trade, positions []domain.Position, cash float64) error {
	rs := b.deps.RunStore
	if rs == nil {
		return nil
	}
	if err := rs.SaveSignals(ctx, b.cfg.RunName, signals); err != nil {
		return fmt.Errorf("saving signals: %w", err)
	}
	if err := rs.SaveTrades(ctx, b.cfg.RunName, strategyName, trades); err != nil {
		return fmt.Errorf("saving trades: %w", err)
	}
	if err := rs.SavePositions(ctx, b.cfg.RunName, strategyName, ts, cash, positions); err != nil {
		return fmt.Errorf("saving positions: %w", err)
	}
	return nil
}

// writeResults renders the report and the CSV output trees.
func (b *Backtest) writeResults(books []book, perf *performance.Manager) error {
	report, err := perf.BuildReport()
	if err != nil {
		return err
	}
	for name, metrics := range report.ByStrategy {
		b.deps.Log.Info("strategy performance",
			"strategy", name,
			"total_pnl", metrics.Total,
			"annualized_return", metrics.AnnualizedReturn,
			"annualized_vol", metrics.AnnualizedVol,
			"sharpe", metrics.Sharpe,
			"max_drawdown", metrics.MaxDrawdown)
	}

	resultsDir := b.cfg.Storage.ResultsDir
	if resultsDir == "" {
		return nil
	}
	if err := perf.SaveCSVs(filepath.Join(resultsDir, "pnl"), b.cfg.RunName); err != nil {
		return err
	}
	for _, bk := range books {
		if err := bk.portfolio.SaveHistory(filepath.Join(resultsDir, "positions"), b.cfg.Mode); err != nil {
			return err
		}
	}
	return nil
}
