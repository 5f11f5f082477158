package domain

import (
	"fmt"
	"log/slog"
	"math"
	"time"
)

// LevelStatus is the lifecycle of a ladder level:
// PENDING -> ACTIVE -> CLOSED -> PENDING (cycle reset).
type LevelStatus string

const (
	LevelPending LevelStatus = "PENDING"
	LevelActive  LevelStatus = "ACTIVE"
	LevelClosed  LevelStatus = "CLOSED"
)

// LevelState is a level priced against the current reference price.
type LevelState struct {
	Level
	BuyPrice  float64
	SellPrice float64
	Quantity  float64 // base-asset size for the next buy
	Status    LevelStatus
	Usable    bool // false when a derived price is non-positive or the ladder is unpriced

	// Set while ACTIVE: the executed entry.
	FilledAt       time.Time
	FillPrice      float64
	FilledQuantity float64
}

// LadderState is the mutable runtime of one strategy. It must not be shared
// between goroutines; each trading pair owns its own instance.
type LadderState struct {
	plan      Plan
	reference float64
	levels    []LevelState
	cycles    int
}

// NewLadderState creates an unpriced state with every level pending.
// Call SetReferencePrice before querying or filling levels.
func NewLadderState(plan Plan) *LadderState {
	levels := make([]LevelState, len(plan.Levels))
	for i, l := range plan.Levels {
		levels[i] = LevelState{Level: l, Status: LevelPending}
	}
	return &LadderState{plan: plan, levels: levels}
}

// Plan returns the immutable plan the state was built from.
func (s *LadderState) Plan() Plan { return s.plan }

// ReferencePrice is the last price used to derive absolute level prices.
func (s *LadderState) ReferencePrice() float64 { return s.reference }

// Cycles counts completed ResetClosedToPending calls that reset at least one level.
func (s *LadderState) Cycles() int { return s.cycles }

// SetReferencePrice re-derives buy/sell prices and sizes for every level,
// keeping each level's status and any executed entry. Levels whose derived
// prices are non-positive are marked unusable and returned; that is reported,
// not fatal.
func (s *LadderState) SetReferencePrice(price float64) ([]int, error) {
	if !(price > 0) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("%w: reference price %v must be > 0", ErrValidation, price)
	}

	next := make([]LevelState, len(s.levels))
	copy(next, s.levels)

	var baseNotional float64
	if len(next) > 0 {
		baseNotional = price * next[0].Multiplier * s.plan.UnitSize
	}

	var unusable []int
	for i := range next {
		ls := &next[i]
		ls.BuyPrice = price * ls.Multiplier
		ls.SellPrice = 0
		if ls.Gap < 1 {
			ls.SellPrice = ls.BuyPrice / (1 - ls.Gap)
		}
		ls.Quantity = PositionSize(ls.Units, baseNotional, ls.BuyPrice)
		ls.Usable = ls.BuyPrice > 0 && ls.SellPrice > 0 && ls.Quantity > 0 &&
			!math.IsInf(ls.SellPrice, 0) && !math.IsInf(ls.Quantity, 0)
		if !ls.Usable {
			unusable = append(unusable, ls.ID)
		}
	}

	s.levels = next
	s.reference = price

	if len(unusable) > 0 {
		slog.Warn("ladder: levels unusable at reference price",
			"reference", price,
			"levels", unusable,
			"gap_max", s.plan.GapMax,
		)
	}
	return unusable, nil
}

// Levels returns a copy of every level's state, shallowest first.
func (s *LadderState) Levels() []LevelState {
	out := make([]LevelState, len(s.levels))
	copy(out, s.levels)
	return out
}

// Level returns the state of one level.
func (s *LadderState) Level(id int) (LevelState, error) {
	idx, ok := s.index(id)
	if !ok {
		return LevelState{}, fmt.Errorf("%w: unknown level %d", ErrValidation, id)
	}
	return s.levels[idx], nil
}

// PendingLevels returns usable pending levels, shallowest first, so callers
// placing or checking the nearest trigger first get a stable order.
func (s *LadderState) PendingLevels() []LevelState {
	return s.filter(func(ls LevelState) bool { return ls.Status == LevelPending && ls.Usable })
}

// ActiveLevels returns levels holding an open position, shallowest first.
func (s *LadderState) ActiveLevels() []LevelState {
	return s.filter(func(ls LevelState) bool { return ls.Status == LevelActive })
}

// TryFillBuy moves a pending level to active when the observed low reaches
// its buy price. The entry is recorded at the level's buy price and size.
func (s *LadderState) TryFillBuy(id int, low float64, at time.Time) bool {
	idx, ok := s.index(id)
	if !ok {
		return false
	}
	ls := s.levels[idx]
	return s.TryFillBuyAt(id, low, ls.BuyPrice, ls.Quantity, at)
}

// TryFillBuyAt is TryFillBuy with the executed price and quantity reported by
// an exchange. The trigger is still checked against the level's buy price.
func (s *LadderState) TryFillBuyAt(id int, low, fillPrice, fillQty float64, at time.Time) bool {
	idx, ok := s.index(id)
	if !ok {
		return false
	}
	ls := &s.levels[idx]
	if ls.Status != LevelPending || !ls.Usable || low > ls.BuyPrice {
		return false
	}
	if fillPrice <= 0 || fillQty <= 0 {
		return false
	}
	ls.Status = LevelActive
	ls.FilledAt = at
	ls.FillPrice = fillPrice
	ls.FilledQuantity = fillQty
	return true
}

// TryFillSell closes an active level when the observed high reaches its sell
// price and returns the resulting trade, fees charged on both legs.
func (s *LadderState) TryFillSell(id int, high float64, at time.Time) (Trade, bool) {
	idx, ok := s.index(id)
	if !ok {
		return Trade{}, false
	}
	return s.TryFillSellAt(id, high, s.levels[idx].SellPrice, at)
}

// TryFillSellAt is TryFillSell with the executed price reported by an exchange.
func (s *LadderState) TryFillSellAt(id int, high, fillPrice float64, at time.Time) (Trade, bool) {
	idx, ok := s.index(id)
	if !ok {
		return Trade{}, false
	}
	ls := &s.levels[idx]
	if ls.Status != LevelActive || ls.SellPrice <= 0 || high < ls.SellPrice || fillPrice <= 0 {
		return Trade{}, false
	}

	p := ComputeProfit(ls.FillPrice, fillPrice, ls.FilledQuantity, s.plan.FeeRate)
	trade := Trade{
		BuyTime:   ls.FilledAt,
		SellTime:  at,
		Level:     ls.ID,
		BuyPrice:  ls.FillPrice,
		SellPrice: fillPrice,
		Quantity:  ls.FilledQuantity,
		Cost:      p.Cost,
		Revenue:   p.Revenue,
		Profit:    p.Profit,
		ROI:       p.ROI,
	}

	ls.Status = LevelClosed
	ls.FilledAt = time.Time{}
	ls.FillPrice = 0
	ls.FilledQuantity = 0
	return trade, true
}

// AllClosed is true when no level is active and at least one has completed a
// cycle. Live drivers use it to decide when to reset the ladder.
func (s *LadderState) AllClosed() bool {
	closed := false
	for _, ls := range s.levels {
		switch ls.Status {
		case LevelActive:
			return false
		case LevelClosed:
			closed = true
		}
	}
	return closed
}

// ResetClosedToPending moves every closed level back to pending and returns
// how many were reset.
func (s *LadderState) ResetClosedToPending() int {
	n := 0
	for i := range s.levels {
		if s.levels[i].Status == LevelClosed {
			s.levels[i].Status = LevelPending
			n++
		}
	}
	if n > 0 {
		s.cycles++
	}
	return n
}

// RequiredCapital is the quote currency needed if every usable level fills.
func (s *LadderState) RequiredCapital() float64 {
	total := 0.0
	for _, ls := range s.levels {
		if ls.Usable {
			total += BuyCost(ls.BuyPrice, ls.Quantity, s.plan.FeeRate)
		}
	}
	return total
}

func (s *LadderState) index(id int) (int, bool) {
	idx := -id - 1
	if idx < 0 || idx >= len(s.levels) {
		return 0, false
	}
	return idx, true
}

func (s *LadderState) filter(keep func(LevelState) bool) []LevelState {
	var out []LevelState
	for _, ls := range s.levels {
		if keep(ls) {
			out = append(out, ls)
		}
	}
	return out
}
