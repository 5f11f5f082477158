package domain

import (
	"fmt"
	"sort"
	"time"
)

// Position is an open ladder entry held by the live ledger.
type Position struct {
	Strategy string
	Level    int
	Symbol   string
	BuyPrice float64
	Quantity float64
	Cost     float64
	OpenedAt time.Time
}

// Portfolio is the live analog of the backtest cash/position ledger. It is
// owned by the trading driver and passed explicitly; there is at most one
// open position per (strategy, level).
type Portfolio struct {
	initialCapital float64
	cash           float64
	positions      map[string]map[int]Position
	trades         []StrategyTrade
}

// StrategyTrade is a trade tagged with the strategy that produced it.
type StrategyTrade struct {
	Strategy string
	Trade
}

// PortfolioStats is the ledger summary at a set of marked prices.
type PortfolioStats struct {
	InitialCapital   float64
	Cash             float64
	CapitalAllocated float64
	TotalValue       float64
	RealizedPnL      float64
	UnrealizedPnL    float64
	TotalPnL         float64
	ROIPct           float64
	Trades           int
	OpenPositions    int
}

// NewPortfolio creates a ledger holding initialCapital in cash.
func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]map[int]Position),
	}
}

// Cash returns the free quote balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// OpenPosition debits the cost and records the position.
func (p *Portfolio) OpenPosition(pos Position) error {
	levels, ok := p.positions[pos.Strategy]
	if !ok {
		levels = make(map[int]Position)
		p.positions[pos.Strategy] = levels
	}
	if _, exists := levels[pos.Level]; exists {
		return fmt.Errorf("%w: %s level %d already has an open position", ErrValidation, pos.Strategy, pos.Level)
	}
	levels[pos.Level] = pos
	p.cash -= pos.Cost
	return nil
}

// ClosePosition removes the open position for the trade's level, credits the
// trade revenue and appends the trade to the history.
func (p *Portfolio) ClosePosition(strategy string, trade Trade) error {
	levels := p.positions[strategy]
	if _, ok := levels[trade.Level]; !ok {
		return fmt.Errorf("%w: %s level %d has no open position", ErrValidation, strategy, trade.Level)
	}
	delete(levels, trade.Level)
	p.cash += trade.Revenue
	p.trades = append(p.trades, StrategyTrade{Strategy: strategy, Trade: trade})
	return nil
}

// Positions returns open positions sorted by strategy then level, shallowest first.
func (p *Portfolio) Positions() []Position {
	var out []Position
	for _, levels := range p.positions {
		for _, pos := range levels {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strategy != out[j].Strategy {
			return out[i].Strategy < out[j].Strategy
		}
		return out[i].Level > out[j].Level
	})
	return out
}

// Trades returns the closed trade history in completion order.
func (p *Portfolio) Trades() []StrategyTrade {
	out := make([]StrategyTrade, len(p.trades))
	copy(out, p.trades)
	return out
}

// TotalValue marks open positions at prices keyed by symbol.
func (p *Portfolio) TotalValue(prices map[string]float64) float64 {
	return p.cash + p.positionsValue(prices)
}

// Snapshot records the ledger value at a point in time.
func (p *Portfolio) Snapshot(at time.Time, prices map[string]float64) Snapshot {
	pv := p.positionsValue(prices)
	return Snapshot{
		Timestamp:      at,
		Cash:           p.cash,
		PositionsValue: pv,
		TotalValue:     p.cash + pv,
	}
}

// UnrealizedPnL is the mark-to-market gain of open positions over their cost.
func (p *Portfolio) UnrealizedPnL(prices map[string]float64) float64 {
	total := 0.0
	for _, levels := range p.positions {
		for _, pos := range levels {
			total += pos.Quantity*prices[pos.Symbol] - pos.Cost
		}
	}
	return total
}

// RealizedPnL sums profit over closed trades.
func (p *Portfolio) RealizedPnL() float64 {
	total := 0.0
	for _, t := range p.trades {
		total += t.Profit
	}
	return total
}

// Statistics summarizes the ledger at the given prices.
func (p *Portfolio) Statistics(prices map[string]float64) PortfolioStats {
	allocated := 0.0
	open := 0
	for _, levels := range p.positions {
		for _, pos := range levels {
			allocated += pos.Cost
			open++
		}
	}

	s := PortfolioStats{
		InitialCapital:   p.initialCapital,
		Cash:             p.cash,
		CapitalAllocated: allocated,
		TotalValue:       p.TotalValue(prices),
		RealizedPnL:      p.RealizedPnL(),
		UnrealizedPnL:    p.UnrealizedPnL(prices),
		Trades:           len(p.trades),
		OpenPositions:    open,
	}
	s.TotalPnL = s.RealizedPnL + s.UnrealizedPnL
	if p.initialCapital > 0 {
		s.ROIPct = s.TotalPnL / p.initialCapital * 100
	}
	return s
}

func (p *Portfolio) positionsValue(prices map[string]float64) float64 {
	total := 0.0
	for _, levels := range p.positions {
		for _, pos := range levels {
			total += pos.Quantity * prices[pos.Symbol]
		}
	}
	return total
}
