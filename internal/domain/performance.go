package domain

import (
	"math"
	"sort"
	"time"
)

// tradingPeriodsPerYear annualizes the Sharpe ratio. Snapshots are assumed to
// be daily-equivalent; callers resample before calling SharpeRatio.
const tradingPeriodsPerYear = 252

// PerformanceReport summarizes a trade log and its portfolio value series.
type PerformanceReport struct {
	NoTrades bool `json:"no_trades"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"` // fraction, 0 when no trades

	TotalProfit float64 `json:"total_profit"`
	AvgProfit   float64 `json:"avg_profit"`
	MaxProfit   float64 `json:"max_profit"`
	MinProfit   float64 `json:"min_profit"`

	InitialCapital float64 `json:"initial_capital"`
	FinalValue     float64 `json:"final_value"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"` // <= 0
	SharpeRatio    float64 `json:"sharpe_ratio"`
}

// Summarize derives the report. Degenerate inputs produce zero values and
// NoTrades=true rather than NaNs.
func Summarize(trades []Trade, snapshots []Snapshot, initialCapital float64) PerformanceReport {
	r := PerformanceReport{
		NoTrades:       len(trades) == 0,
		TotalTrades:    len(trades),
		InitialCapital: initialCapital,
		FinalValue:     initialCapital,
		MaxDrawdownPct: MaxDrawdown(snapshots),
		SharpeRatio:    SharpeRatio(snapshots),
	}

	if len(snapshots) > 0 {
		r.FinalValue = snapshots[len(snapshots)-1].TotalValue
	}
	if initialCapital > 0 {
		r.TotalReturnPct = (r.FinalValue - initialCapital) / initialCapital * 100
	}

	if len(trades) == 0 {
		return r
	}

	r.MaxProfit = math.Inf(-1)
	r.MinProfit = math.Inf(1)
	for _, t := range trades {
		r.TotalProfit += t.Profit
		switch {
		case t.Profit > 0:
			r.WinningTrades++
		case t.Profit < 0:
			r.LosingTrades++
		}
		r.MaxProfit = math.Max(r.MaxProfit, t.Profit)
		r.MinProfit = math.Min(r.MinProfit, t.Profit)
	}
	r.AvgProfit = r.TotalProfit / float64(len(trades))
	r.WinRate = float64(r.WinningTrades) / float64(len(trades))
	return r
}

// MaxDrawdown returns the most negative peak-to-trough decline of TotalValue
// in percent. It is always <= 0 and is 0 exactly when the series never falls.
func MaxDrawdown(snapshots []Snapshot) float64 {
	peak := 0.0
	worst := 0.0
	for i, s := range snapshots {
		if i == 0 || s.TotalValue > peak {
			peak = s.TotalValue
		}
		if peak <= 0 {
			continue
		}
		if dd := (s.TotalValue - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst * 100
}

// SharpeRatio annualizes mean/stddev of period-over-period returns.
// Returns 0 with fewer than two returns or zero variance.
func SharpeRatio(snapshots []Snapshot) float64 {
	if len(snapshots) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].TotalValue
		if prev == 0 {
			continue
		}
		returns = append(returns, snapshots[i].TotalValue/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	// sample standard deviation
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(tradingPeriodsPerYear)
}

// ResampleDaily keeps the last snapshot of each UTC calendar day. snapshots
// must be in ascending timestamp order.
func ResampleDaily(snapshots []Snapshot) []Snapshot {
	out := make([]Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		day := s.Timestamp.UTC().Truncate(24 * time.Hour)
		if n := len(out); n > 0 && out[n-1].Timestamp.UTC().Truncate(24*time.Hour).Equal(day) {
			out[n-1] = s
			continue
		}
		out = append(out, s)
	}
	return out
}

// LevelProfit aggregates trades of a single ladder level.
type LevelProfit struct {
	Level        int     `json:"level"`
	Trades       int     `json:"trades"`
	TotalProfit  float64 `json:"total_profit"`
	AvgProfit    float64 `json:"avg_profit"`
	AvgBuyPrice  float64 `json:"avg_buy_price"`
	AvgSellPrice float64 `json:"avg_sell_price"`
}

// ProfitByLevel groups trades per level, shallowest level first.
func ProfitByLevel(trades []Trade) []LevelProfit {
	byLevel := make(map[int]*LevelProfit)
	for _, t := range trades {
		lp, ok := byLevel[t.Level]
		if !ok {
			lp = &LevelProfit{Level: t.Level}
			byLevel[t.Level] = lp
		}
		lp.Trades++
		lp.TotalProfit += t.Profit
		lp.AvgBuyPrice += t.BuyPrice
		lp.AvgSellPrice += t.SellPrice
	}

	out := make([]LevelProfit, 0, len(byLevel))
	for _, lp := range byLevel {
		n := float64(lp.Trades)
		lp.AvgProfit = lp.TotalProfit / n
		lp.AvgBuyPrice /= n
		lp.AvgSellPrice /= n
		out = append(out, *lp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level > out[j].Level })
	return out
}
