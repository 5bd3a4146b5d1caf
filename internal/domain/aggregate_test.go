package domain

import (
	"math"
	"testing"
)

func usSymbol(ticker string) Symbol {
	return Symbol{Ticker: ticker, AssetClass: AssetClassUSEquities}
}

func TestAggregatePositionsVolumeWeighted(t *testing.T) {
	acme := usSymbol("ACME")
	byStrategy := []StrategyAttribution{
		{Strategy: "alpha", Positions: []Position{{Symbol: acme, Quantity: 100, Price: 1.0}}},
		{Strategy: "beta", Positions: []Position{{Symbol: acme, Quantity: 50, Price: 2.0}}},
	}

	total, perStrategy := AggregatePositions(byStrategy)

	got, ok := total[acme.Key()]
	if !ok {
		t.Fatal("aggregate missing ACME position")
	}
	if got.Quantity != 150 {
		t.Errorf("aggregate Quantity = %d, want 150", got.Quantity)
	}
	want := (100*1.0 + 50*2.0) / 150
	if math.Abs(got.Price-want) > 1e-9 {
		t.Errorf("aggregate Price = %v, want %v", got.Price, want)
	}

	// Per-strategy view keeps each strategy's own position untouched.
	if p := perStrategy["alpha"][acme.Key()]; p.Quantity != 100 || p.Price != 1.0 {
		t.Errorf("alpha position = %+v, want 100 @ 1.0", p)
	}
	if p := perStrategy["beta"][acme.Key()]; p.Quantity != 50 || p.Price != 2.0 {
		t.Errorf("beta position = %+v, want 50 @ 2.0", p)
	}
}

func TestAggregatePositionsNetZero(t *testing.T) {
	acme := usSymbol("ACME")
	byStrategy := []StrategyAttribution{
		{Strategy: "alpha", Positions: []Position{{Symbol: acme, Quantity: 100, Price: 1.0}}},
		{Strategy: "beta", Positions: []Position{{Symbol: acme, Quantity: -100, Price: 2.0}}},
	}

	total, _ := AggregatePositions(byStrategy)

	got := total[acme.Key()]
	if got.Quantity != 0 {
		t.Errorf("aggregate Quantity = %d, want 0", got.Quantity)
	}
	if got.Price != 0 {
		t.Errorf("aggregate Price = %v, want 0 for flat position", got.Price)
	}
}

func TestAggregateTradesOppositeSignsNet(t *testing.T) {
	acme := usSymbol("ACME")
	byStrategy := []StrategyAttribution{
		{Strategy: "alpha", Trades: []Trade{
			{Timestamp: 10, Symbol: acme, Quantity: 100, Limit: math.Inf(1), Type: TradeTypeSimpleFixed},
		}},
		{Strategy: "beta", Trades: []Trade{
			{Timestamp: 11, Symbol: acme, Quantity: -40, Limit: 0, Type: TradeTypeSimpleFixed},
		}},
	}

	total, perStrategy, err := AggregateTrades(byStrategy)
	if err != nil {
		t.Fatalf("AggregateTrades: %v", err)
	}

	got := total[acme.Key()]
	if got.Quantity != 60 {
		t.Errorf("netted Quantity = %d, want 60", got.Quantity)
	}
	// The merged trade keeps the first aggregate's timestamp and limit.
	if got.Timestamp != 10 {
		t.Errorf("netted Timestamp = %d, want 10", got.Timestamp)
	}
	if !math.IsInf(got.Limit, 1) {
		t.Errorf("netted Limit = %v, want +Inf", got.Limit)
	}

	if tr := perStrategy["alpha"][acme.Key()]; tr.Quantity != 100 {
		t.Errorf("alpha trade Quantity = %d, want 100", tr.Quantity)
	}
}

func TestAggregateTradesSameSignLimitConvention(t *testing.T) {
	acme := usSymbol("ACME")

	// Two market-style buys add together.
	total, _, err := AggregateTrades([]StrategyAttribution{
		{Strategy: "alpha", Trades: []Trade{
			{Timestamp: 10, Symbol: acme, Quantity: 100, Limit: math.Inf(1), Type: TradeTypeSimpleFixed},
			{Timestamp: 10, Symbol: acme, Quantity: 25, Limit: math.Inf(1), Type: TradeTypeSimpleFixed},
		}},
	})
	if err != nil {
		t.Fatalf("AggregateTrades: %v", err)
	}
	if got := total[acme.Key()].Quantity; got != 125 {
		t.Errorf("same-sign market buys Quantity = %d, want 125", got)
	}

	// A same-sign buy with a real limit price is dropped from the aggregate.
	total, _, err = AggregateTrades([]StrategyAttribution{
		{Strategy: "alpha", Trades: []Trade{
			{Timestamp: 10, Symbol: acme, Quantity: 100, Limit: math.Inf(1), Type: TradeTypeSimpleFixed},
			{Timestamp: 10, Symbol: acme, Quantity: 25, Limit: 99.5, Type: TradeTypeSimpleFixed},
		}},
	})
	if err != nil {
		t.Fatalf("AggregateTrades: %v", err)
	}
	if got := total[acme.Key()].Quantity; got != 100 {
		t.Errorf("limit-priced same-sign buy changed Quantity = %d, want 100", got)
	}
}

func TestAggregateTradesTypeMismatch(t *testing.T) {
	acme := usSymbol("ACME")
	_, _, err := AggregateTrades([]StrategyAttribution{
		{Strategy: "alpha", Trades: []Trade{
			{Timestamp: 10, Symbol: acme, Quantity: 100, Limit: math.Inf(1), Type: TradeTypeSimpleFixed},
			{Timestamp: 10, Symbol: acme, Quantity: 10, Limit: math.Inf(1), Type: TradeType("other")},
		}},
	})
	if err == nil {
		t.Fatal("expected error for mismatched trade types")
	}
}

func TestSymbolKeyEquality(t *testing.T) {
	a := Symbol{Ticker: "ACME", AssetClass: AssetClassUSEquities, SubClass: "tech"}
	b := Symbol{Ticker: "ACME", AssetClass: AssetClassUSEquities}

	if a.Key() != b.Key() {
		t.Errorf("keys differ: %v vs %v", a.Key(), b.Key())
	}

	m := map[SymbolKey]int{a.Key(): 1}
	if m[b.Key()] != 1 {
		t.Error("separately constructed symbols are not interchangeable as map keys")
	}
}

func TestSymbolRegistryResolve(t *testing.T) {
	reg := NewSymbolRegistry([]Symbol{usSymbol("ACME"), usSymbol("GLOBEX")})

	s, err := reg.Resolve("ACME", AssetClassUSEquities)
	if err != nil {
		t.Fatalf("Resolve(ACME): %v", err)
	}
	if s.Ticker != "ACME" {
		t.Errorf("Resolve returned ticker %q, want ACME", s.Ticker)
	}

	if _, err := reg.Resolve("NOPE", AssetClassUSEquities); err == nil {
		t.Error("Resolve(NOPE) succeeded, want error")
	}
}
