// Package store persists and retrieves the engine's data: historical bars
// and news series in Parquet files, and per-run artifacts (signals, trades,
// position snapshots) in SQLite.
package store

import (
	"context"

	"quantbt/internal/domain"
)

// Bar is one daily OHLCV record for a ticker. Timestamp is Unix seconds.
type Bar struct {
	Ticker    string
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// News is one dated news-derived record for a ticker: the number of articles
// and an aggregate sentiment score. Timestamp is Unix seconds.
type News struct {
	Ticker    string
	Timestamp int64
	Articles  int64
	Sentiment float64
}

// BarStore persists and retrieves daily OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for the given asset class.
	WriteBars(ctx context.Context, ac domain.AssetClass, bars []Bar) error

	// ReadBars returns bars for the ticker within [start, end] seconds.
	ReadBars(ctx context.Context, ac domain.AssetClass, ticker string, start, end int64) ([]Bar, error)

	// ListTickers returns all distinct tickers with bar data.
	ListTickers(ctx context.Context, ac domain.AssetClass) ([]string, error)
}

// NewsStore persists and retrieves daily news records.
type NewsStore interface {
	// WriteNews persists a batch of news records for the given asset class.
	WriteNews(ctx context.Context, ac domain.AssetClass, records []News) error

	// ReadNews returns news records for the ticker within [start, end] seconds.
	ReadNews(ctx context.Context, ac domain.AssetClass, ticker string, start, end int64) ([]News, error)
}

// RunStore persists the artifacts a simulation produces as it runs.
type RunStore interface {
	// SaveSignals records the signals emitted at one step.
	SaveSignals(ctx context.Context, run string, signals []domain.Signal) error

	// SaveTrades records the trades a strategy executed at one step.
	SaveTrades(ctx context.Context, run, strategy string, trades []domain.Trade) error

	// SavePositions records a strategy's open positions after one step.
	SavePositions(ctx context.Context, run, strategy string, ts int64, cash float64, positions []domain.Position) error
}
