// Package domain defines the core value types shared across the backtest
// engine: symbols, signals, trades, positions, and the timestamp-indexed
// data structures the simulation iterates over.
package domain

import "fmt"

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// AssetClass identifies the market segment a symbol trades in.
type AssetClass string

const (
	AssetClassUSEquities AssetClass = "us_equities"
)

// DataType identifies a category of per-symbol time series data.
type DataType string

const (
	DataTypeStock DataType = "stock_data"
	DataTypeNews  DataType = "news_data"
)

// Mode selects how the engine runs.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// TradingTime is the convention for which intraday price is actionable at a
// calendar timestamp.
type TradingTime string

const (
	// TradingTimeNYCDailyOpen exposes only the daily opening price as the
	// live, tradable price.
	TradingTimeNYCDailyOpen TradingTime = "nyc_daily_open"
)

// SignalType is the direction of a strategy signal.
type SignalType string

const (
	SignalLong  SignalType = "long"
	SignalShort SignalType = "short"
)

// TradeType determines the lifecycle rule applied to an executed trade.
type TradeType string

const (
	// TradeTypeSimpleFixed sizes the trade in fixed dollars and force-closes
	// it after a fixed holding period.
	TradeTypeSimpleFixed TradeType = "simple_fixed"
)

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// SymbolKey is the identity of a symbol: ticker plus asset class. Two Symbol
// values with the same key are interchangeable as map keys.
type SymbolKey struct {
	Ticker     string
	AssetClass AssetClass
}

func (k SymbolKey) String() string {
	return fmt.Sprintf("%s:%s", k.Ticker, k.AssetClass)
}

// Symbol is an immutable identifier for a tradable instrument. SubClass is an
// optional refinement (e.g. a sector) and does not participate in identity.
type Symbol struct {
	Ticker     string
	AssetClass AssetClass
	SubClass   string
}

// Key returns the identity of the symbol.
func (s Symbol) Key() SymbolKey {
	return SymbolKey{Ticker: s.Ticker, AssetClass: s.AssetClass}
}

func (s Symbol) String() string { return s.Key().String() }

// ---------------------------------------------------------------------------
// Signals, trades, positions
// ---------------------------------------------------------------------------

// Signal is an immutable event emitted by a strategy. Timestamps are Unix
// seconds (UTC) on the trading calendar grid.
type Signal struct {
	Timestamp int64
	Symbol    Symbol
	Type      SignalType
	Strength  float64
	Strategy  string
}

// Trade is an order instruction. Quantity is signed (positive buys). Limit
// follows the all-or-nothing convention: +Inf means accept any price buying,
// 0 means accept any price selling. Execution against a live price is the
// portfolio processor's job.
type Trade struct {
	Timestamp int64
	Symbol    Symbol
	Quantity  int64
	Limit     float64
	Type      TradeType
}

// Position is a net holding in one symbol. Price is the volume-weighted
// average entry price (cost basis).
type Position struct {
	Symbol   Symbol
	Quantity int64
	Price    float64
}
