package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolFilters are the exchange's price/quantity granularity rules for a pair.
// Zero values disable the corresponding rule.
type SymbolFilters struct {
	Symbol      string
	TickSize    decimal.Decimal
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// RoundPrice floors price to the tick size.
func (f SymbolFilters) RoundPrice(price float64) decimal.Decimal {
	return floorToStep(decimal.NewFromFloat(price), f.TickSize)
}

// RoundQuantity floors quantity to the lot step size.
func (f SymbolFilters) RoundQuantity(qty float64) decimal.Decimal {
	return floorToStep(decimal.NewFromFloat(qty), f.StepSize)
}

// Apply rounds an order to the filters and rejects it if it ends up below the
// minimum quantity or notional.
func (f SymbolFilters) Apply(price, qty float64) (decimal.Decimal, decimal.Decimal, error) {
	p := f.RoundPrice(price)
	q := f.RoundQuantity(qty)

	if !p.IsPositive() {
		return p, q, fmt.Errorf("%w: %s price %v rounds to %s", ErrValidation, f.Symbol, price, p)
	}
	if !q.IsPositive() || (f.MinQty.IsPositive() && q.LessThan(f.MinQty)) {
		return p, q, fmt.Errorf("%w: %s quantity %s below minimum %s", ErrValidation, f.Symbol, q, f.MinQty)
	}
	if notional := p.Mul(q); f.MinNotional.IsPositive() && notional.LessThan(f.MinNotional) {
		return p, q, fmt.Errorf("%w: %s notional %s below minimum %s", ErrValidation, f.Symbol, notional, f.MinNotional)
	}
	return p, q, nil
}

func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}
