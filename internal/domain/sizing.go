package domain

import "math"

// DefaultFeeRate is the per-leg exchange fee applied when none is configured.
const DefaultFeeRate = 0.001

// ProfitBreakdown is the fee-adjusted result of a round trip at a ladder level.
type ProfitBreakdown struct {
	BuyNotional  float64
	BuyFee       float64
	Cost         float64 // BuyNotional + BuyFee
	SellNotional float64
	SellFee      float64
	Revenue      float64 // SellNotional - SellFee
	Profit       float64
	ROI          float64 // Profit / Cost, 0 when Cost is 0
}

// ComputeProfit scores a buy/sell round trip with the fee charged on both legs.
// Backtest and live paths use this same function so their numbers compare.
func ComputeProfit(buyPrice, sellPrice, quantity, feeRate float64) ProfitBreakdown {
	buyNotional := buyPrice * quantity
	buyFee := buyNotional * feeRate
	sellNotional := sellPrice * quantity
	sellFee := sellNotional * feeRate

	p := ProfitBreakdown{
		BuyNotional:  buyNotional,
		BuyFee:       buyFee,
		Cost:         buyNotional + buyFee,
		SellNotional: sellNotional,
		SellFee:      sellFee,
		Revenue:      sellNotional - sellFee,
	}
	p.Profit = p.Revenue - p.Cost
	if p.Cost != 0 {
		p.ROI = p.Profit / p.Cost
	}
	return p
}

// BuyCost is the cash debited when a buy of quantity fills at price.
func BuyCost(price, quantity, feeRate float64) float64 {
	return price * quantity * (1 + feeRate)
}

// ComputeUnits returns the Martingale weight 2^levelIndex.
//
// No cap is enforced here: callers keep levelIndex small enough that
// 2^levelIndex × unit size stays within the asset's tradable range.
func ComputeUnits(levelIndex int) float64 {
	return math.Ldexp(1, levelIndex)
}

// PositionSize returns the base-asset quantity for a level so that its notional
// cost is units × baseNotional. Deeper levels therefore double in quote terms,
// not in base-asset units.
func PositionSize(units, baseNotional, buyPrice float64) float64 {
	if buyPrice <= 0 {
		return 0
	}
	return units * baseNotional / buyPrice
}
