package portfolio

import (
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quantbt/internal/config"
	"quantbt/internal/domain"
)

const day = int64(86400)

var testBase = int64(1700000000)

func testStrategy() config.Strategy {
	return config.Strategy{
		Name:             "momo_a",
		Type:             "open_crossover",
		AssetClass:       domain.AssetClassUSEquities,
		TradeSizeDollars: 10000,
		HoldingPeriodSec: 2 * day,
		TradeType:        domain.TradeTypeSimpleFixed,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func aapl() domain.Symbol {
	return domain.Symbol{Ticker: "AAPL", AssetClass: domain.AssetClassUSEquities}
}

func liveAt(open float64) domain.Slice {
	return domain.Slice{
		domain.SeriesKeyFor(aapl(), domain.DataTypeStock): domain.Row{"Open": open},
	}
}

func TestTradesFromSignalsSizing(t *testing.T) {
	p := NewProcessor(testStrategy(), discardLogger())

	signals := []domain.Signal{{
		Timestamp: testBase,
		Symbol:    aapl(),
		Type:      domain.SignalLong,
		Strength:  0.5,
		Strategy:  "momo_a",
	}}

	trades := p.TradesFromSignals(signals, liveAt(100), 1.0)
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	// 1 × 1.0 × 10000 / 100 × 0.5 = 50
	if trades[0].Quantity != 50 {
		t.Errorf("quantity = %d, want 50", trades[0].Quantity)
	}
	if !math.IsInf(trades[0].Limit, 1) {
		t.Errorf("buy limit = %v, want +Inf", trades[0].Limit)
	}
}

func TestTradesFromSignalsShortAndZero(t *testing.T) {
	p := NewProcessor(testStrategy(), discardLogger())

	signals := []domain.Signal{
		{Timestamp: testBase, Symbol: aapl(), Type: domain.SignalShort, Strength: 1.0},
		{Timestamp: testBase, Symbol: aapl(), Type: domain.SignalLong, Strength: 0.000001},
	}

	trades := p.TradesFromSignals(signals, liveAt(100), 1.0)
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1 (zero-quantity signal dropped)", len(trades))
	}
	if trades[0].Quantity != -100 {
		t.Errorf("short quantity = %d, want -100", trades[0].Quantity)
	}
	if trades[0].Limit != 0 {
		t.Errorf("sell limit = %v, want 0", trades[0].Limit)
	}
}

func TestExecuteTradeUpdatesCashAndPosition(t *testing.T) {
	p := NewProcessor(testStrategy(), discardLogger())

	buy := domain.Trade{
		Timestamp: testBase, Symbol: aapl(), Quantity: 100,
		Limit: math.Inf(1), Type: domain.TradeTypeSimpleFixed,
	}
	executed, err := p.ExecuteTrades(testBase, []domain.Trade{buy}, liveAt(100))
	if err != nil {
		t.Fatalf("ExecuteTrades: %v", err)
	}
	if len(executed) != 1 {
		t.Fatalf("got %d executed trades, want 1", len(executed))
	}
	if got := p.Cash(); got != -10000 {
		t.Errorf("cash = %v, want -10000", got)
	}
	positions := p.Positions()
	if len(positions) != 1 || positions[0].Quantity != 100 || positions[0].Price != 100 {
		t.Errorf("positions = %+v, want one 100 @ 100", positions)
	}
}

func TestStartingCashSeedsBook(t *testing.T) {
	strat := testStrategy()
	strat.StartingCash = 250000
	p := NewProcessor(strat, discardLogger())

	if got := p.Cash(); got != 250000 {
		t.Errorf("cash = %v, want 250000 before any trade", got)
	}

	buy := domain.Trade{Timestamp: testBase, Symbol: aapl(), Quantity: 100, Limit: math.Inf(1), Type: domain.TradeTypeSimpleFixed}
	if _, err := p.ExecuteTrades(testBase, []domain.Trade{buy}, liveAt(100)); err != nil {
		t.Fatalf("ExecuteTrades: %v", err)
	}
	if got := p.Cash(); got != 240000 {
		t.Errorf("cash = %v, want 240000 after a 10000 buy", got)
	}
}

func TestExecuteTradeReaveragesPosition(t *testing.T) {
	p := NewProcessor(testStrategy(), discardLogger())

	first := domain.Trade{Timestamp: testBase, Symbol: aapl(), Quantity: 100, Limit: math.Inf(1), Type: domain.TradeTypeSimpleFixed}
	if _, err := p.ExecuteTrades(testBase, []domain.Trade{first}, liveAt(1)); err != nil {
		t.Fatalf("ExecuteTrades: %v", err)
	}
	second := domain.Trade{Timestamp: testBase + day, Symbol: aapl(), Quantity: 50, Limit: math.Inf(1), Type: domain.TradeTypeSimpleFixed}
	if _, err := p.ExecuteTrades(testBase+day, []domain.Trade{second}, liveAt(2)); err != nil {
		t.Fatalf("ExecuteTrades: %v", err)
	}

	positions := p.Positions()
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	if positions[0].Quantity != 150 {
		t.Errorf("quantity = %d, want 150", positions[0].Quantity)
	}
	if want := 200.0 / 150.0; math.Abs(positions[0].Price-want) > 1e-9 {
		t.Errorf("price = %v, want %v", positions[0].Price, want)
	}
}

func TestInvalidLimitTradeIsReportedButNotApplied(t *testing.T) {
	p := NewProcessor(testStrategy(), discardLogger())

	// Buy with a limit below the market: fails the limit check.
	trade := domain.Trade{Timestamp: testBase, Symbol: aapl(), Quantity: 100, Limit: 50, Type: domain.TradeTypeSimpleFixed}
	executed, err := p.ExecuteTrades(testBase, []domain.Trade{trade}, liveAt(100))
	if err != nil {
		t.Fatalf("ExecuteTrades: %v", err)
	}
	if len(executed) != 1 {
		t.Fatalf("invalid trade missing from the step output")
	}
	if p.Cash() != 0 {
		t.Errorf("cash = %v, want 0 after invalid trade", p.Cash())
	}
	if len(p.Positions()) != 0 {
		t.Errorf("positions = %+v, want none after invalid trade", p.Positions())
	}
}

func TestHoldingPeriodExpiryNegatesQuantity(t *testing.T) {
	p := NewProcessor(testStrategy(), discardLogger())

	buy := domain.Trade{Timestamp: testBase, Symbol: aapl(), Quantity: 100, Limit: math.Inf(1), Type: domain.TradeTypeSimpleFixed}
	if _, err := p.ExecuteTrades(testBase, []domain.Trade{buy}, liveAt(100)); err != nil {
		t.Fatalf("ExecuteTrades: %v", err)
	}

	// One day in: still inside the two-day holding period.
	executed, err := p.ExecuteTrades(testBase+day, nil, liveAt(110))
	if err != nil {
		t.Fatalf("ExecuteTrades: %v", err)
	}
	if len(executed) != 0 {
		t.Fatalf("holding closed early: %+v", executed)
	}

	// Two days in: the holding expires with the exact negated quantity at
	// the current open.
	executed, err = p.ExecuteTrades(testBase+2*day, nil, liveAt(120))
	if err != nil {
		t.Fatalf("ExecuteTrades: %v", err)
	}
	if len(executed) != 1 {
		t.Fatalf("got %d closing trades, want 1", len(executed))
	}
	if executed[0].Quantity != -100 {
		t.Errorf("closing quantity = %d, want -100", executed[0].Quantity)
	}
	if len(p.Positions()) != 0 {
		t.Errorf("positions = %+v, want none after expiry", p.Positions())
	}
	// Bought at 100, sold at 120.
	if p.Cash() != 2000 {
		t.Errorf("cash = %v, want 2000", p.Cash())
	}
}

func TestUnknownTradeTypeIsFatal(t *testing.T) {
	p := NewProcessor(testStrategy(), discardLogger())

	trade := domain.Trade{Timestamp: testBase, Symbol: aapl(), Quantity: 1, Limit: math.Inf(1), Type: "exotic"}
	if _, err := p.ExecuteTrades(testBase, []domain.Trade{trade}, liveAt(100)); err == nil {
		t.Error("expected error for unknown trade type, got nil")
	}
}

func TestSaveHistoryWritesCSV(t *testing.T) {
	p := NewProcessor(testStrategy(), discardLogger())

	buy := domain.Trade{Timestamp: testBase, Symbol: aapl(), Quantity: 10, Limit: math.Inf(1), Type: domain.TradeTypeSimpleFixed}
	if _, err := p.ExecuteTrades(testBase, []domain.Trade{buy}, liveAt(100)); err != nil {
		t.Fatalf("ExecuteTrades: %v", err)
	}
	p.RecordSnapshot(testBase)

	dir := t.TempDir()
	if err := p.SaveHistory(dir, domain.ModeBacktest); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "backtest", "momo_a.csv"))
	if err != nil {
		t.Fatalf("reading history file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "ESTDateStr") {
		t.Error("history header missing ESTDateStr column")
	}
	if !strings.Contains(content, "AAPL,10,100") {
		t.Errorf("history row missing position data:\n%s", content)
	}
}
