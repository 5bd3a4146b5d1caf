// Package data loads the historical series a run needs and drives the
// chronological walk over them: a DataManager that fetches and indexes every
// configured (symbol, data type, provider) series in parallel, and a
// DataProcessor that yields per-timestamp observed/live/future views.
package data

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantbt/internal/domain"
	"quantbt/internal/store"
	"quantbt/internal/util"
)

// Source fetches one time series for a symbol. Entries are returned sorted
// ascending by timestamp; a missing file or record is a recoverable condition
// reported as an error by the source and degraded to an empty series by the
// manager.
type Source interface {
	Fetch(ctx context.Context, dt domain.DataType, sym domain.Symbol, start, end int64) ([]domain.Entry, error)
}

// Compile-time interface checks.
var _ Source = (*ParquetSource)(nil)
var _ Source = (*AlpacaSource)(nil)

// ---------------------------------------------------------------------------
// ParquetSource — file-backed series from the Parquet store.
// ---------------------------------------------------------------------------

// ParquetSource reads bar and news series from Parquet files on disk.
type ParquetSource struct {
	store *store.ParquetStore
}

// NewParquetSource creates a ParquetSource over the given store.
func NewParquetSource(s *store.ParquetStore) *ParquetSource {
	return &ParquetSource{store: s}
}

// Fetch reads the series for the symbol in [start, end] seconds.
func (s *ParquetSource) Fetch(ctx context.Context, dt domain.DataType, sym domain.Symbol, start, end int64) ([]domain.Entry, error) {
	switch dt {
	case domain.DataTypeStock:
		bars, err := s.store.ReadBars(ctx, sym.AssetClass, sym.Ticker, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s: %w", sym, err)
		}
		entries := make([]domain.Entry, 0, len(bars))
		for _, b := range bars {
			entries = append(entries, domain.Entry{Timestamp: b.Timestamp, Row: barRow(b)})
		}
		return entries, nil

	case domain.DataTypeNews:
		records, err := s.store.ReadNews(ctx, sym.AssetClass, sym.Ticker, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading news for %s: %w", sym, err)
		}
		entries := make([]domain.Entry, 0, len(records))
		for _, n := range records {
			entries = append(entries, domain.Entry{Timestamp: n.Timestamp, Row: newsRow(n)})
		}
		return entries, nil

	default:
		return nil, fmt.Errorf("unsupported data type %q", dt)
	}
}

func barRow(b store.Bar) domain.Row {
	return domain.Row{
		"Open":   b.Open,
		"High":   b.High,
		"Low":    b.Low,
		"Close":  b.Close,
		"Volume": float64(b.Volume),
	}
}

func newsRow(n store.News) domain.Row {
	return domain.Row{
		"Articles":  float64(n.Articles),
		"Sentiment": n.Sentiment,
	}
}

// ---------------------------------------------------------------------------
// AlpacaSource — remote series from the Alpaca market-data API.
// ---------------------------------------------------------------------------

// AlpacaSource fetches daily bars and news from the Alpaca market-data API.
// Requests are rate limited and retried on transient failures.
type AlpacaSource struct {
	client  *marketdata.Client
	limiter *util.RateLimiter
}

// NewAlpacaSource creates an AlpacaSource with the given credentials.
func NewAlpacaSource(apiKey, apiSecret, dataURL string, ratePerMin int) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if ratePerMin <= 0 {
		ratePerMin = 200
	}
	return &AlpacaSource{
		client:  marketdata.NewClient(opts),
		limiter: util.NewRateLimiter(ratePerMin),
	}
}

// Fetch reads the series for the symbol in [start, end] seconds.
func (s *AlpacaSource) Fetch(ctx context.Context, dt domain.DataType, sym domain.Symbol, start, end int64) ([]domain.Entry, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	switch dt {
	case domain.DataTypeStock:
		return s.fetchBars(ctx, sym, start, end)
	case domain.DataTypeNews:
		return s.fetchNews(ctx, sym, start, end)
	default:
		return nil, fmt.Errorf("unsupported data type %q", dt)
	}
}

func (s *AlpacaSource) fetchBars(ctx context.Context, sym domain.Symbol, start, end int64) ([]domain.Entry, error) {
	var bars []marketdata.Bar
	err := util.Retry(ctx, 3, time.Second, func() error {
		var ferr error
		bars, ferr = s.client.GetBars(sym.Ticker, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     time.Unix(start, 0).UTC(),
			End:       time.Unix(end, 0).UTC(),
		})
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars(%s): %w", sym.Ticker, err)
	}

	entries := make([]domain.Entry, 0, len(bars))
	for _, b := range bars {
		entries = append(entries, domain.Entry{
			Timestamp: util.MidnightET(b.Timestamp),
			Row: domain.Row{
				"Open":   b.Open,
				"High":   b.High,
				"Low":    b.Low,
				"Close":  b.Close,
				"Volume": float64(b.Volume),
			},
		})
	}
	return entries, nil
}

// fetchNews aggregates the article stream into one row per day with the
// article count. Article-level sentiment is not available from this
// provider, so the Sentiment column is zero.
func (s *AlpacaSource) fetchNews(ctx context.Context, sym domain.Symbol, start, end int64) ([]domain.Entry, error) {
	var articles []marketdata.News
	err := util.Retry(ctx, 3, time.Second, func() error {
		var ferr error
		articles, ferr = s.client.GetNews(marketdata.GetNewsRequest{
			Symbols: []string{sym.Ticker},
			Start:   time.Unix(start, 0).UTC(),
			End:     time.Unix(end, 0).UTC(),
			Sort:    marketdata.SortAsc,
		})
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetNews(%s): %w", sym.Ticker, err)
	}

	counts := make(map[int64]int64)
	for _, a := range articles {
		counts[util.MidnightET(a.CreatedAt)]++
	}

	entries := make([]domain.Entry, 0, len(counts))
	for day, n := range counts {
		entries = append(entries, domain.Entry{
			Timestamp: day,
			Row:       domain.Row{"Articles": float64(n), "Sentiment": 0},
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	return entries, nil
}
