// Package portfolio turns signals into trades and tracks per-strategy state:
// the Processor executes one strategy's trades against its own cash and
// position book, and the Manager aggregates every strategy's books into the
// portfolio-level view.
package portfolio

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/util"
)

// openTrade is an executed opening trade awaiting its holding-period expiry.
type openTrade struct {
	trade domain.Trade
}

// snapshotRow is one line of the positions-history table.
type snapshotRow struct {
	Timestamp int64
	Ticker    string
	Quantity  int64
	Price     float64
	Cash      float64
}

// Processor owns one strategy's book: cash, open positions, and the opening
// trades still inside their holding period.
type Processor struct {
	strategy config.Strategy
	log      *slog.Logger

	cash      float64
	positions map[domain.SymbolKey]domain.Position
	open      []openTrade
	history   []snapshotRow
}

// NewProcessor creates a processor with an empty book seeded with the
// strategy's starting cash.
func NewProcessor(strategy config.Strategy, log *slog.Logger) *Processor {
	return &Processor{
		strategy:  strategy,
		log:       log,
		cash:      strategy.StartingCash,
		positions: make(map[domain.SymbolKey]domain.Position),
	}
}

// Strategy returns the configuration this processor executes.
func (p *Processor) Strategy() config.Strategy { return p.strategy }

// Cash returns the strategy's running cash balance.
func (p *Processor) Cash() float64 { return p.cash }

// TradesFromSignals sizes each signal into a trade using the live open
// price. The quantity is sign × weight × tradeSizeDollars / open × strength,
// truncated toward zero; a zero quantity produces no trade. Buys carry a
// limit of +Inf and sells a limit of 0, the conventions under which
// market-style trades always pass the limit check. Signals whose symbol has
// no live price are skipped.
func (p *Processor) TradesFromSignals(signals []domain.Signal, live domain.Slice, weight float64) []domain.Trade {
	trades := make([]domain.Trade, 0, len(signals))
	for _, sig := range signals {
		key := domain.SeriesKeyFor(sig.Symbol, domain.DataTypeStock)
		row, ok := live[key]
		if !ok {
			p.log.Warn("no live price for signal, skipping",
				"strategy", p.strategy.Name, "ticker", sig.Symbol.Ticker)
			continue
		}
		open := row["Open"]
		if open == 0 {
			p.log.Warn("zero live open for signal, skipping",
				"strategy", p.strategy.Name, "ticker", sig.Symbol.Ticker)
			continue
		}

		sign := 1.0
		if sig.Type == domain.SignalShort {
			sign = -1.0
		}
		qty := int64(sign * weight * p.strategy.TradeSizeDollars / open * sig.Strength)
		if qty == 0 {
			continue
		}

		limit := math.Inf(1)
		if qty < 0 {
			limit = 0
		}
		trades = append(trades, domain.Trade{
			Timestamp: sig.Timestamp,
			Symbol:    sig.Symbol,
			Quantity:  qty,
			Limit:     limit,
			Type:      p.strategy.TradeType,
		})
	}
	return trades
}

// ExecuteTrades applies one step's trades to the book. Expiring holdings are
// closed first, then the incoming trades execute in order. The returned list
// holds every trade considered this step, including trades that failed their
// limit check and therefore changed nothing.
func (p *Processor) ExecuteTrades(ts int64, trades []domain.Trade, live domain.Slice) ([]domain.Trade, error) {
	executed := make([]domain.Trade, 0, len(trades))

	closing, err := p.expireHoldings(ts, live)
	if err != nil {
		return nil, err
	}
	executed = append(executed, closing...)

	for _, trade := range trades {
		if err := p.execute(trade, live, true); err != nil {
			return nil, err
		}
		executed = append(executed, trade)
	}
	return executed, nil
}

// expireHoldings closes every tracked opening trade whose holding period has
// elapsed, with the exactly negated quantity at the current open. Closing
// trades are not themselves tracked for expiry.
func (p *Processor) expireHoldings(ts int64, live domain.Slice) ([]domain.Trade, error) {
	var closing []domain.Trade
	remaining := p.open[:0]
	for _, ot := range p.open {
		if ot.trade.Timestamp+p.strategy.HoldingPeriodSec > ts {
			remaining = append(remaining, ot)
			continue
		}
		qty := -ot.trade.Quantity
		limit := math.Inf(1)
		if qty < 0 {
			limit = 0
		}
		trade := domain.Trade{
			Timestamp: ts,
			Symbol:    ot.trade.Symbol,
			Quantity:  qty,
			Limit:     limit,
			Type:      ot.trade.Type,
		}
		if err := p.execute(trade, live, false); err != nil {
			return nil, err
		}
		closing = append(closing, trade)
	}
	p.open = remaining
	return closing, nil
}

// execute applies a single trade to cash and positions. A trade that fails
// its limit check mutates nothing. track marks opening trades for later
// holding-period expiry.
func (p *Processor) execute(trade domain.Trade, live domain.Slice, track bool) error {
	if trade.Type != domain.TradeTypeSimpleFixed {
		return fmt.Errorf("unknown trade type %q", trade.Type)
	}

	row, ok := live[domain.SeriesKeyFor(trade.Symbol, domain.DataTypeStock)]
	if !ok {
		return fmt.Errorf("no live price to execute %s trade", trade.Symbol.Ticker)
	}
	price := row["Open"]

	valid := (trade.Quantity > 0 && price <= trade.Limit) ||
		(trade.Quantity < 0 && price >= trade.Limit)
	if !valid {
		p.log.Warn("trade failed limit check, not executed",
			"strategy", p.strategy.Name,
			"ticker", trade.Symbol.Ticker,
			"quantity", trade.Quantity,
			"limit", trade.Limit,
			"price", price)
		return nil
	}

	p.cash -= float64(trade.Quantity) * price
	p.applyToPosition(trade, price)
	if track {
		p.open = append(p.open, openTrade{trade: trade})
	}
	return nil
}

// applyToPosition creates, re-averages, or deletes the position for the
// trade's symbol. The cost basis is the volume-weighted average of the
// existing position and the fill.
func (p *Processor) applyToPosition(trade domain.Trade, price float64) {
	key := trade.Symbol.Key()
	existing, ok := p.positions[key]
	if !ok {
		p.positions[key] = domain.Position{Symbol: trade.Symbol, Quantity: trade.Quantity, Price: price}
		return
	}

	total := existing.Quantity + trade.Quantity
	if total == 0 {
		delete(p.positions, key)
		return
	}
	avg := (float64(existing.Quantity)*existing.Price + float64(trade.Quantity)*price) / float64(total)
	p.positions[key] = domain.Position{Symbol: trade.Symbol, Quantity: total, Price: avg}
}

// Positions returns the open positions sorted by ticker.
func (p *Processor) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol.Ticker < out[j].Symbol.Ticker })
	return out
}

// RecordSnapshot appends the current book to the positions-history table. A
// flat book still records one row carrying the cash balance.
func (p *Processor) RecordSnapshot(ts int64) {
	positions := p.Positions()
	if len(positions) == 0 {
		p.history = append(p.history, snapshotRow{Timestamp: ts, Cash: p.cash})
		return
	}
	for _, pos := range positions {
		p.history = append(p.history, snapshotRow{
			Timestamp: ts,
			Ticker:    pos.Symbol.Ticker,
			Quantity:  pos.Quantity,
			Price:     pos.Price,
			Cash:      p.cash,
		})
	}
}

// SaveHistory writes the positions-history table to
// <dir>/<mode>/<strategy-name>.csv.
func (p *Processor) SaveHistory(dir string, mode domain.Mode) error {
	outDir := filepath.Join(dir, string(mode))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating positions dir: %w", err)
	}
	path := filepath.Join(outDir, p.strategy.Name+".csv")

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating positions file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Timestamp", "ESTDateStr", "Ticker", "Quantity", "Price", "Cash"}); err != nil {
		return err
	}
	for _, row := range p.history {
		record := []string{
			strconv.FormatInt(row.Timestamp, 10),
			util.ESTDate(row.Timestamp),
			row.Ticker,
			strconv.FormatInt(row.Quantity, 10),
			strconv.FormatFloat(row.Price, 'f', -1, 64),
			strconv.FormatFloat(row.Cash, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
