// Package performance attributes PnL to trades and positions as the
// simulation advances and renders the end-of-run report: per-symbol and
// per-strategy PnL tables, summary metrics, and CSV output.
package performance

import (
	"log/slog"
	"sort"

	"quantbt/internal/domain"
)

// Row is one PnL attribution event. NewTrade is the PnL a trade placed at
// the row's timestamp earns over that day; Positional is the PnL an existing
// position carries into the row's timestamp from the prior close.
type Row struct {
	Timestamp  int64
	NewTrade   float64
	Positional float64
}

// table accumulates attribution rows per symbol.
type table map[domain.SymbolKey][]Row

// Manager accumulates PnL attribution across the run, at the portfolio
// level and per strategy.
type Manager struct {
	runEnd int64
	log    *slog.Logger

	bySymbol   table
	byStrategy map[string]table
}

// NewManager creates an empty attribution manager. runEnd bounds the
// positional attribution: PnL landing at or past it is out of the run and
// never recorded.
func NewManager(runEnd int64, log *slog.Logger) *Manager {
	return &Manager{
		runEnd:     runEnd,
		log:        log,
		bySymbol:   make(table),
		byStrategy: make(map[string]table),
	}
}

// Update records one step's attribution. Trades placed at ts earn the
// current day's open-to-close move; positions held through ts earn the
// close-to-close move realized at next, recorded only when next is still
// inside the run.
func (m *Manager) Update(
	ts, next int64,
	future domain.Window,
	trades domain.AggregatedTrades,
	positions domain.AggregatedPositions,
	tradesByStrategy map[string]domain.AggregatedTrades,
	positionsByStrategy map[string]domain.AggregatedPositions,
) {
	m.attributeTo(m.bySymbol, ts, next, future, trades, positions)
	for name, stratTrades := range tradesByStrategy {
		m.attributeTo(m.strategyTable(name), ts, next, future, stratTrades, positionsByStrategy[name])
	}
	// Strategies with positions but no trades this step still accrue.
	for name, stratPositions := range positionsByStrategy {
		if _, done := tradesByStrategy[name]; done {
			continue
		}
		m.attributeTo(m.strategyTable(name), ts, next, future, nil, stratPositions)
	}
}

func (m *Manager) strategyTable(name string) table {
	t, ok := m.byStrategy[name]
	if !ok {
		t = make(table)
		m.byStrategy[name] = t
	}
	return t
}

func (m *Manager) attributeTo(t table, ts, next int64, future domain.Window, trades domain.AggregatedTrades, positions domain.AggregatedPositions) {
	for key, trade := range trades {
		if trade.Quantity == 0 {
			continue
		}
		entries := futureEntries(future, trade.Symbol)
		if len(entries) == 0 {
			m.log.Warn("no forward bar to score trade", "ticker", key.Ticker, "timestamp", ts)
			continue
		}
		pnl := (entries[0].Row["Close"] - entries[0].Row["Open"]) * float64(trade.Quantity)
		t[key] = append(t[key], Row{Timestamp: ts, NewTrade: pnl})
	}

	if next >= m.runEnd {
		return
	}
	for key, pos := range positions {
		if pos.Quantity == 0 {
			continue
		}
		entries := futureEntries(future, pos.Symbol)
		if len(entries) < 2 {
			m.log.Warn("no next bar to mark position", "ticker", key.Ticker, "timestamp", ts)
			continue
		}
		pnl := (entries[1].Row["Close"] - entries[0].Row["Close"]) * float64(pos.Quantity)
		t[key] = append(t[key], Row{Timestamp: next, Positional: pnl})
	}
}

func futureEntries(future domain.Window, sym domain.Symbol) []domain.Entry {
	return future[domain.SeriesKeyFor(sym, domain.DataTypeStock)]
}

// Symbols returns the symbol keys with portfolio-level attribution, sorted
// by ticker.
func (m *Manager) Symbols() []domain.SymbolKey {
	return sortedKeys(m.bySymbol)
}

// Strategies returns the strategy names with attribution, sorted.
func (m *Manager) Strategies() []string {
	names := make([]string, 0, len(m.byStrategy))
	for name := range m.byStrategy {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SymbolRows returns the portfolio-level attribution rows for a symbol.
func (m *Manager) SymbolRows(key domain.SymbolKey) []Row { return m.bySymbol[key] }

// StrategyRows returns a strategy's attribution rows per symbol.
func (m *Manager) StrategyRows(strategy string) map[domain.SymbolKey][]Row {
	return m.byStrategy[strategy]
}

func sortedKeys(t table) []domain.SymbolKey {
	keys := make([]domain.SymbolKey, 0, len(t))
	for key := range t {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Ticker < keys[j].Ticker })
	return keys
}
