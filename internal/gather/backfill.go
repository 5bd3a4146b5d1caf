package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantbt/internal/domain"
	"quantbt/internal/store"
	"quantbt/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ Gatherer = (*BarBackfiller)(nil)
var _ Gatherer = (*NewsBackfiller)(nil)

// ---------------------------------------------------------------------------
// BarBackfiller — daily OHLCV bars from the Alpaca API.
// ---------------------------------------------------------------------------

// BarBackfiller fetches daily bars for a fixed ticker universe in symbol
// batches and writes them to the bar store.
type BarBackfiller struct {
	client     *marketdata.Client
	store      store.BarStore
	assetClass domain.AssetClass
	tickers    []string
	rng        DateRange
	batchSize  int
	maxWorkers int
	log        *slog.Logger
}

// NewBarBackfiller creates a BarBackfiller with the given Alpaca
// credentials, target store, and batch parameters.
func NewBarBackfiller(apiKey, apiSecret, dataURL string, s store.BarStore, ac domain.AssetClass, tickers []string, rng DateRange, batchSize, maxWorkers int, log *slog.Logger) *BarBackfiller {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if batchSize < 1 {
		batchSize = 200
	}
	if maxWorkers < 1 {
		maxWorkers = 4
	}

	return &BarBackfiller{
		client:     marketdata.NewClient(opts),
		store:      s,
		assetClass: ac,
		tickers:    tickers,
		rng:        rng,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		log:        log.With("gatherer", "bars"),
	}
}

// Name returns the gatherer identifier.
func (g *BarBackfiller) Name() string { return "bars" }

// Run fetches the universe's daily bars batch by batch and writes them to
// the store. A failed batch is logged and skipped; the remaining batches
// still run.
func (g *BarBackfiller) Run(ctx context.Context) error {
	batches := batchTickers(g.tickers, g.batchSize)
	if len(batches) == 0 {
		g.log.Info("nothing to backfill")
		return nil
	}

	var (
		totalBars atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
	)

	g.log.Info("starting bar backfill",
		"tickers", len(g.tickers),
		"batches", len(batches),
		"start", g.rng.Start.Format("2006-01-02"),
		"end", g.rng.End.Format("2006-01-02"))

	err := util.ForEach(ctx, g.maxWorkers, len(batches), func(i int) {
		bars, err := g.fetchBatch(ctx, batches[i])
		if err != nil {
			g.log.Error("batch fetch failed",
				"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
				"err", err)
			failed.Add(1)
			return
		}
		if len(bars) > 0 {
			if err := g.store.WriteBars(ctx, g.assetClass, bars); err != nil {
				g.log.Error("writing bars failed", "err", err)
				failed.Add(1)
				return
			}
		}
		totalBars.Add(int64(len(bars)))
		g.log.Info("batch done",
			"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
			"bars", len(bars),
			"elapsed", time.Since(runStart).Round(time.Second))
	})
	if err != nil {
		return err
	}

	g.log.Info("bar backfill complete",
		"bars", totalBars.Load(),
		"failed_batches", failed.Load(),
		"elapsed", time.Since(runStart).Round(time.Second))
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed", n, len(batches))
	}
	return nil
}

// fetchBatch fetches daily bars for one symbol batch in a single API call.
func (g *BarBackfiller) fetchBatch(ctx context.Context, tickers []string) ([]store.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	multiBars, err := g.client.GetMultiBars(tickers, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     g.rng.Start,
		End:       g.rng.End,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}
	return convertBars(multiBars), nil
}

// convertBars flattens the per-symbol API response, normalizing timestamps
// to the midnight-ET trading-day convention.
func convertBars(multiBars map[string][]marketdata.Bar) []store.Bar {
	var bars []store.Bar
	for ticker, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, store.Bar{
				Ticker:    strings.ToUpper(ticker),
				Timestamp: util.MidnightET(ab.Timestamp),
				Open:      ab.Open,
				High:      ab.High,
				Low:       ab.Low,
				Close:     ab.Close,
				Volume:    int64(ab.Volume),
			})
		}
	}
	return bars
}

func batchTickers(tickers []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(tickers); i += size {
		batches = append(batches, tickers[i:min(i+size, len(tickers))])
	}
	return batches
}

// ---------------------------------------------------------------------------
// NewsBackfiller — per-day article counts from the Alpaca news API.
// ---------------------------------------------------------------------------

// NewsBackfiller fetches the news stream per ticker, collapses it to one
// record per trading day, and writes the records to the news store.
type NewsBackfiller struct {
	client     *marketdata.Client
	store      store.NewsStore
	assetClass domain.AssetClass
	tickers    []string
	rng        DateRange
	limiter    *util.RateLimiter
	maxWorkers int
	log        *slog.Logger
}

// NewNewsBackfiller creates a NewsBackfiller. ratePerMin caps the news API
// call rate across all workers.
func NewNewsBackfiller(apiKey, apiSecret, dataURL string, s store.NewsStore, ac domain.AssetClass, tickers []string, rng DateRange, ratePerMin, maxWorkers int, log *slog.Logger) *NewsBackfiller {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if ratePerMin < 1 {
		ratePerMin = 200
	}
	if maxWorkers < 1 {
		maxWorkers = 4
	}

	return &NewsBackfiller{
		client:     marketdata.NewClient(opts),
		store:      s,
		assetClass: ac,
		tickers:    tickers,
		rng:        rng,
		limiter:    util.NewRateLimiter(ratePerMin),
		maxWorkers: maxWorkers,
		log:        log.With("gatherer", "news"),
	}
}

// Name returns the gatherer identifier.
func (g *NewsBackfiller) Name() string { return "news" }

// Run fetches and stores the news series ticker by ticker.
func (g *NewsBackfiller) Run(ctx context.Context) error {
	var (
		mu       sync.Mutex
		failures []string
		total    atomic.Int64
		runStart = time.Now()
	)

	g.log.Info("starting news backfill", "tickers", len(g.tickers))

	err := util.ForEach(ctx, g.maxWorkers, len(g.tickers), func(i int) {
		ticker := g.tickers[i]
		records, err := g.fetchTicker(ctx, ticker)
		if err != nil {
			g.log.Error("news fetch failed", "ticker", ticker, "err", err)
			mu.Lock()
			failures = append(failures, ticker)
			mu.Unlock()
			return
		}
		if len(records) > 0 {
			if err := g.store.WriteNews(ctx, g.assetClass, records); err != nil {
				g.log.Error("writing news failed", "ticker", ticker, "err", err)
				mu.Lock()
				failures = append(failures, ticker)
				mu.Unlock()
				return
			}
		}
		total.Add(int64(len(records)))
	})
	if err != nil {
		return err
	}

	g.log.Info("news backfill complete",
		"records", total.Load(),
		"failed_tickers", len(failures),
		"elapsed", time.Since(runStart).Round(time.Second))
	if len(failures) > 0 {
		return fmt.Errorf("news backfill failed for %d tickers", len(failures))
	}
	return nil
}

func (g *NewsBackfiller) fetchTicker(ctx context.Context, ticker string) ([]store.News, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var articles []marketdata.News
	err := util.Retry(ctx, 3, time.Second, func() error {
		var ferr error
		articles, ferr = g.client.GetNews(marketdata.GetNewsRequest{
			Symbols: []string{ticker},
			Start:   g.rng.Start,
			End:     g.rng.End,
			Sort:    marketdata.SortAsc,
		})
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetNews(%s): %w", ticker, err)
	}

	counts := make(map[int64]int64)
	for _, a := range articles {
		counts[util.MidnightET(a.CreatedAt)]++
	}

	records := make([]store.News, 0, len(counts))
	for day, n := range counts {
		records = append(records, store.News{
			Ticker:    ticker,
			Timestamp: day,
			Articles:  n,
		})
	}
	return records, nil
}
