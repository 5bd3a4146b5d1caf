package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"quantbt/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ NewsStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and NewsStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Ticker    string  `parquet:"ticker"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// NewsRecord is the Parquet schema for daily news data.
type NewsRecord struct {
	Ticker    string  `parquet:"ticker"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Articles  int64   `parquet:"articles"`
	Sentiment float64 `parquet:"sentiment"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by ticker and year.
// Each ticker+year combination produces a separate file at:
//
//	<DataDir>/<assetClass>/daily/<TICKER>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, ac domain.AssetClass, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		ticker string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{ticker: b.Ticker, year: yearOf(b.Timestamp)}
		groups[k] = append(groups[k], BarRecord{
			Ticker:    b.Ticker,
			Timestamp: b.Timestamp * 1000,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		path := s.seriesPath(ac, "daily", k.ticker, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeRecords(existing, records,
			func(r BarRecord) recordKey { return recordKey{r.Ticker, r.Timestamp} },
			func(r BarRecord) int64 { return r.Timestamp },
		)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.ticker, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given ticker and
// inclusive time range in Unix seconds.
func (s *ParquetStore) ReadBars(_ context.Context, ac domain.AssetClass, ticker string, start, end int64) ([]Bar, error) {
	var bars []Bar
	for year := yearOf(start); year <= yearOf(end); year++ {
		path := s.seriesPath(ac, "daily", ticker, year)

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			// No file for this year, nothing to read.
			continue
		}

		for _, r := range records {
			ts := r.Timestamp / 1000
			if ts >= start && ts <= end {
				bars = append(bars, Bar{
					Ticker:    r.Ticker,
					Timestamp: ts,
					Open:      r.Open,
					High:      r.High,
					Low:       r.Low,
					Close:     r.Close,
					Volume:    r.Volume,
				})
			}
		}
	}
	return bars, nil
}

// ListTickers lists all tickers that have bar data in the given asset class.
func (s *ParquetStore) ListTickers(_ context.Context, ac domain.AssetClass) ([]string, error) {
	dir := filepath.Join(s.DataDir, string(ac), "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// ---------------------------------------------------------------------------
// NewsStore implementation
// ---------------------------------------------------------------------------

// WriteNews writes news records to Parquet files organized by ticker and year
// under <DataDir>/<assetClass>/news/<TICKER>/<YYYY>.parquet.
func (s *ParquetStore) WriteNews(_ context.Context, ac domain.AssetClass, records []News) error {
	if len(records) == 0 {
		return nil
	}

	type key struct {
		ticker string
		year   int
	}
	groups := make(map[key][]NewsRecord)
	for _, n := range records {
		k := key{ticker: n.Ticker, year: yearOf(n.Timestamp)}
		groups[k] = append(groups[k], NewsRecord{
			Ticker:    n.Ticker,
			Timestamp: n.Timestamp * 1000,
			Articles:  n.Articles,
			Sentiment: n.Sentiment,
		})
	}

	for k, incoming := range groups {
		path := s.seriesPath(ac, "news", k.ticker, k.year)

		existing, _ := readParquetFile[NewsRecord](path)
		merged := mergeRecords(existing, incoming,
			func(r NewsRecord) recordKey { return recordKey{r.Ticker, r.Timestamp} },
			func(r NewsRecord) int64 { return r.Timestamp },
		)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing news for %s/%d: %w", k.ticker, k.year, err)
		}
	}
	return nil
}

// ReadNews reads news records for the given ticker and inclusive time range
// in Unix seconds.
func (s *ParquetStore) ReadNews(_ context.Context, ac domain.AssetClass, ticker string, start, end int64) ([]News, error) {
	var out []News
	for year := yearOf(start); year <= yearOf(end); year++ {
		path := s.seriesPath(ac, "news", ticker, year)

		records, err := readParquetFile[NewsRecord](path)
		if err != nil {
			continue
		}

		for _, r := range records {
			ts := r.Timestamp / 1000
			if ts >= start && ts <= end {
				out = append(out, News{
					Ticker:    r.Ticker,
					Timestamp: ts,
					Articles:  r.Articles,
					Sentiment: r.Sentiment,
				})
			}
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// seriesPath returns the filesystem path for one series-year file.
// Layout: <dataDir>/<assetClass>/<kind>/<TICKER>/<YYYY>.parquet
func (s *ParquetStore) seriesPath(ac domain.AssetClass, kind, ticker string, year int) string {
	return filepath.Join(s.DataDir, string(ac), kind, strings.ToUpper(ticker), fmt.Sprintf("%d.parquet", year))
}

func yearOf(ts int64) int {
	return time.Unix(ts, 0).UTC().Year()
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type recordKey struct {
	ticker string
	ts     int64
}

// mergeRecords deduplicates records by key, preferring incoming records over
// existing ones. Results are sorted by timestamp.
func mergeRecords[T any](existing, incoming []T, keyOf func(T) recordKey, tsOf func(T) int64) []T {
	seen := make(map[recordKey]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[keyOf(r)] = r
	}
	for _, r := range incoming {
		seen[keyOf(r)] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return tsOf(merged[i]) < tsOf(merged[j])
	})
	return merged
}
