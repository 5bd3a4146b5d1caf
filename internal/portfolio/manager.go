package portfolio

import "quantbt/internal/domain"

// Manager holds the portfolio-level view rebuilt from every strategy's book
// each step. It keeps no state of its own between steps; the per-strategy
// processors are the source of truth.
type Manager struct {
	trades           domain.AggregatedTrades
	positions        domain.AggregatedPositions
	tradesByStrategy map[string]domain.AggregatedTrades
	positionsByStrat map[string]domain.AggregatedPositions
}

// NewManager returns a manager with empty aggregates.
func NewManager() *Manager {
	return &Manager{
		trades:           make(domain.AggregatedTrades),
		positions:        make(domain.AggregatedPositions),
		tradesByStrategy: make(map[string]domain.AggregatedTrades),
		positionsByStrat: make(map[string]domain.AggregatedPositions),
	}
}

// Update replaces the held aggregates with the step's per-strategy results.
func (m *Manager) Update(byStrategy []domain.StrategyAttribution) error {
	trades, tradesByStrategy, err := domain.AggregateTrades(byStrategy)
	if err != nil {
		return err
	}
	positions, positionsByStrat := domain.AggregatePositions(byStrategy)

	m.trades = trades
	m.tradesByStrategy = tradesByStrategy
	m.positions = positions
	m.positionsByStrat = positionsByStrat
	return nil
}

// Trades returns the portfolio-wide netted trades for the current step.
func (m *Manager) Trades() domain.AggregatedTrades { return m.trades }

// Positions returns the portfolio-wide net positions for the current step.
func (m *Manager) Positions() domain.AggregatedPositions { return m.positions }

// TradesByStrategy returns the per-strategy netted trades for the current
// step.
func (m *Manager) TradesByStrategy() map[string]domain.AggregatedTrades { return m.tradesByStrategy }

// PositionsByStrategy returns the per-strategy net positions for the current
// step.
func (m *Manager) PositionsByStrategy() map[string]domain.AggregatedPositions {
	return m.positionsByStrat
}
