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

// Step is one simulated timestamp handed to the engine loop: the trailing
// observed window, the live slice visible at execution time, and the forward
// window used to score the day's trades.
type Step struct {
	Timestamp     int64
	NextTimestamp int64

	// Observed holds up to lookback rows per series, all strictly earlier
	// than Timestamp. It is an independent snapshot per step.
	Observed domain.Window

	// Live holds the execution-time view at Timestamp. At the daily open
	// only the Open price is knowable, so bar rows are reduced to that
	// single column.
	Live domain.Slice

	// Future holds up to lookahead rows per series starting at Timestamp
	// itself, ascending.
	Future domain.Window
}

// Processor walks a loaded data set chronologically and produces Steps for
// every trading timestamp inside the run window.
type Processor struct {
	set       *domain.DataSet
	runStart  int64
	runEnd    int64
	lookback  int
	lookahead int
	workers   int
	log       *slog.Logger
}

// NewProcessor validates the run configuration against what the walk can
// serve. Only the backtest mode at the NYC daily open is supported: that is
// the only combination for which the live slice can be derived from daily
// bars.
func NewProcessor(cfg *config.Global, set *domain.DataSet, log *slog.Logger) (*Processor, error) {
	if cfg.Mode != domain.ModeBacktest || cfg.TradingTime != domain.TradingTimeNYCDailyOpen {
		return nil, fmt.Errorf("no live data rule for mode %q at trading time %q", cfg.Mode, cfg.TradingTime)
	}
	if cfg.Lookahead.Value < 1 {
		return nil, fmt.Errorf("lookahead must be at least 1, got %d", cfg.Lookahead.Value)
	}
	return &Processor{
		set:       set,
		runStart:  cfg.RunStart,
		runEnd:    cfg.RunEnd,
		lookback:  cfg.Lookback.Value,
		lookahead: cfg.Lookahead.Value,
		workers:   cfg.Workers,
		log:       log,
	}, nil
}

// Iterator precomputes the forward windows and returns a cursor over the
// run's steps.
func (p *Processor) Iterator(ctx context.Context) (*Iterator, error) {
	start := time.Now()
	future, err := p.precomputeFuture(ctx)
	if err != nil {
		return nil, err
	}
	p.log.Info("forward windows precomputed",
		"timestamps", len(future),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &Iterator{
		p:        p,
		keys:     p.set.Times(),
		future:   future,
		observed: make(domain.Window),
		i:        0,
	}, nil
}

// Iterator yields Steps in chronological order. It is not safe for
// concurrent use.
type Iterator struct {
	p        *Processor
	keys     []int64
	future   map[int64]domain.Window
	observed domain.Window
	i        int
}

// Next returns the next in-window step. The second result is false when the
// walk is exhausted. Timestamps before the run start still advance the
// observed window; timestamps at or past the run end stop the walk. The
// first and last loaded timestamps are never yielded: the first has no prior
// row to observe and the last has no next timestamp to score against.
func (it *Iterator) Next() (Step, bool) {
	for {
		it.i++
		if it.i > len(it.keys)-2 {
			return Step{}, false
		}

		// Everything up to and including the previous timestamp is now
		// observable.
		prev := it.keys[it.i-1]
		for key, row := range it.p.set.At(prev) {
			entry := domain.Entry{Timestamp: prev, Row: castToBooleans(row.Clone())}
			it.observed.Append(key, entry, it.p.lookback)
		}

		ts := it.keys[it.i]
		if ts < it.p.runStart {
			continue
		}
		if ts >= it.p.runEnd {
			return Step{}, false
		}

		return Step{
			Timestamp:     ts,
			NextTimestamp: it.keys[it.i+1],
			Observed:      it.observed.Clone(),
			Live:          it.p.liveSlice(ts),
			Future:        it.future[ts],
		}, true
	}
}

// liveSlice reduces the current timestamp's bar rows to the open price, the
// only column knowable at the daily open. Non-bar series are not visible
// live.
func (p *Processor) liveSlice(ts int64) domain.Slice {
	live := make(domain.Slice)
	for key, row := range p.set.At(ts) {
		if key.DataType != domain.DataTypeStock {
			continue
		}
		if open, ok := row["Open"]; ok {
			live[key] = domain.Row{"Open": open}
		}
	}
	return live
}

// castToBooleans re-types columns whose numeric encoding is known to carry
// boolean meaning. No loaded series needs it today, so it passes rows
// through unchanged.
func castToBooleans(r domain.Row) domain.Row {
	return r
}

// ---------------------------------------------------------------------------
// Forward-window precompute
// ---------------------------------------------------------------------------

// precomputeFuture builds, for every loaded timestamp, the window of up to
// lookahead rows per series starting at that timestamp. The timeline is
// split into contiguous chunks, one per worker; each worker preloads the
// rows just past its chunk's end and then walks its chunk backwards,
// prepending the current row and snapshotting the window.
func (p *Processor) precomputeFuture(ctx context.Context) (map[int64]domain.Window, error) {
	keys := p.set.Times()
	n := len(keys)
	if n == 0 {
		return map[int64]domain.Window{}, nil
	}

	workers := p.workers
	if workers < 1 {
		workers = 1
	}
	chunk := (n + workers - 1) / workers
	numChunks := (n + chunk - 1) / chunk

	partial := make([]map[int64]domain.Window, numChunks)
	err := util.ForEach(ctx, workers, numChunks, func(c int) {
		startIdx := c * chunk
		endIdx := min((c+1)*chunk, n) - 1
		partial[c] = p.futureChunk(keys, startIdx, endIdx)
	})
	if err != nil {
		return nil, err
	}

	merged := make(map[int64]domain.Window, n)
	for _, part := range partial {
		for ts, window := range part {
			if _, ok := merged[ts]; !ok {
				merged[ts] = window
			}
		}
	}
	return merged, nil
}

// futureChunk computes the forward windows for keys[startIdx..endIdx].
func (p *Processor) futureChunk(keys []int64, startIdx, endIdx int) map[int64]domain.Window {
	out := make(map[int64]domain.Window, endIdx-startIdx+1)
	window := make(domain.Window)

	// Seed with the rows just past the chunk end, newest first so the
	// backward walk below sees them in ascending order once prepended.
	preloadEnd := min(endIdx+p.lookahead, len(keys)) - 1
	for i := preloadEnd; i > endIdx; i-- {
		ts := keys[i]
		for key, row := range p.set.At(ts) {
			window.Prepend(key, domain.Entry{Timestamp: ts, Row: row.Clone()}, p.lookahead)
		}
	}

	for i := endIdx; i >= startIdx; i-- {
		ts := keys[i]
		for key, row := range p.set.At(ts) {
			window.Prepend(key, domain.Entry{Timestamp: ts, Row: row.Clone()}, p.lookahead)
		}
		out[ts] = window.Clone()
	}
	return out
}
