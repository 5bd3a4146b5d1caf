package domain

import (
	"fmt"
	"math"
)

// AggregatedPositions is the portfolio-wide net position per symbol.
type AggregatedPositions map[SymbolKey]Position

// AggregatedTrades is the portfolio-wide netted trade per symbol.
type AggregatedTrades map[SymbolKey]Trade

// StrategyAttribution pairs a strategy name with the trades and positions it
// produced this step. Order is preserved so aggregation is deterministic.
type StrategyAttribution struct {
	Strategy  string
	Trades    []Trade
	Positions []Position
}

// AggregatePositions merges per-strategy position lists into the portfolio
// view and a per-strategy view. Quantities sum; cost basis is re-averaged by
// volume.
func AggregatePositions(byStrategy []StrategyAttribution) (AggregatedPositions, map[string]AggregatedPositions) {
	total := make(AggregatedPositions)
	perStrategy := make(map[string]AggregatedPositions)

	for _, attr := range byStrategy {
		strat, ok := perStrategy[attr.Strategy]
		if !ok {
			strat = make(AggregatedPositions)
			perStrategy[attr.Strategy] = strat
		}
		for _, pos := range attr.Positions {
			key := pos.Symbol.Key()
			if existing, found := total[key]; found {
				total[key] = mergePositions(existing, pos)
			} else {
				total[key] = pos
			}
			if existing, found := strat[key]; found {
				strat[key] = mergePositions(existing, pos)
			} else {
				strat[key] = pos
			}
		}
	}
	return total, perStrategy
}

func mergePositions(aggregate, pos Position) Position {
	totalQty := aggregate.Quantity + pos.Quantity
	price := 0.0
	if totalQty != 0 {
		price = (aggregate.Price*float64(aggregate.Quantity) + pos.Price*float64(pos.Quantity)) / float64(totalQty)
	}
	return Position{Symbol: pos.Symbol, Quantity: totalQty, Price: price}
}

// AggregateTrades merges per-strategy trade lists into the portfolio view
// and a per-strategy view, netting per the rules of mergeTrades.
func AggregateTrades(byStrategy []StrategyAttribution) (AggregatedTrades, map[string]AggregatedTrades, error) {
	total := make(AggregatedTrades)
	perStrategy := make(map[string]AggregatedTrades)

	for _, attr := range byStrategy {
		strat, ok := perStrategy[attr.Strategy]
		if !ok {
			strat = make(AggregatedTrades)
			perStrategy[attr.Strategy] = strat
		}
		for _, trade := range attr.Trades {
			key := trade.Symbol.Key()

			if existing, ok := total[key]; ok {
				merged, err := mergeTrades(existing, trade)
				if err != nil {
					return nil, nil, err
				}
				total[key] = merged
			} else {
				total[key] = trade
			}

			if existing, ok := strat[key]; ok {
				merged, err := mergeTrades(existing, trade)
				if err != nil {
					return nil, nil, err
				}
				strat[key] = merged
			} else {
				strat[key] = trade
			}
		}
	}
	return total, perStrategy, nil
}

// mergeTrades folds a trade into an aggregate for the same symbol. Opposite
// signs always net. Same signs only add when the trade follows the
// all-or-nothing limit convention (+Inf buying, 0 selling); otherwise the
// incoming quantity is dropped. The merged trade keeps the aggregate's
// timestamp and limit.
func mergeTrades(aggregate, trade Trade) (Trade, error) {
	if aggregate.Type != trade.Type {
		return Trade{}, fmt.Errorf("trade types do not match: %s != %s", aggregate.Type, trade.Type)
	}

	qty := aggregate.Quantity
	if sign(trade.Quantity) != sign(aggregate.Quantity) {
		qty += trade.Quantity
	} else if trade.AcceptsAnyPrice() {
		qty += trade.Quantity
	}

	return Trade{
		Timestamp: aggregate.Timestamp,
		Symbol:    aggregate.Symbol,
		Quantity:  qty,
		Limit:     aggregate.Limit,
		Type:      aggregate.Type,
	}, nil
}

// AcceptsAnyPrice reports whether the trade uses the all-or-nothing limit
// convention for its direction: +Inf for buys, 0 for sells.
func (t Trade) AcceptsAnyPrice() bool {
	return (math.IsInf(t.Limit, 1) && t.Quantity > 0) || (t.Limit == 0 && t.Quantity < 0)
}

func sign(q int64) int {
	switch {
	case q > 0:
		return 1
	case q < 0:
		return -1
	default:
		return 0
	}
}
