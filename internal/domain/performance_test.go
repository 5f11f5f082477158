package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snaps(values ...float64) []Snapshot {
	out := make([]Snapshot, len(values))
	for i, v := range values {
		out[i] = Snapshot{Timestamp: t0.Add(time.Duration(i) * 24 * time.Hour), Cash: v, TotalValue: v}
	}
	return out
}

func TestMaxDrawdown(t *testing.T) {
	// peak 120, trough 90 → -25%
	assert.InDelta(t, -25.0, MaxDrawdown(snaps(100, 120, 110, 90, 130)), 1e-9)
	assert.Equal(t, 0.0, MaxDrawdown(snaps(100, 100, 101, 150)))
	assert.Equal(t, 0.0, MaxDrawdown(nil))
	assert.Equal(t, 0.0, MaxDrawdown(snaps(100)))
}

func TestMaxDrawdown_NeverPositive(t *testing.T) {
	series := [][]float64{
		{100, 99, 98, 97},
		{1, 1000, 1},
		{100, 101, 100.5, 102, 50, 200},
	}
	for _, s := range series {
		dd := MaxDrawdown(snaps(s...))
		assert.LessOrEqual(t, dd, 0.0)
		assert.Less(t, dd, 0.0, "series %v falls at some point", s)
	}
}

// hourly builds 24 snapshots per day whose last value of day i is closes[i].
func hourly(closes ...float64) []Snapshot {
	var out []Snapshot
	for d, c := range closes {
		for h := 0; h < 24; h++ {
			v := c - float64(23-h)*0.5 // intraday noise, ends at the close
			out = append(out, Snapshot{
				Timestamp:  t0.Add(time.Duration(d*24+h) * time.Hour),
				TotalValue: v,
			})
		}
	}
	return out
}

func TestResampleDaily_KeepsLastOfEachDay(t *testing.T) {
	got := ResampleDaily(hourly(100, 110, 104.5))
	require.Len(t, got, 3)
	assert.Equal(t, []float64{100, 110, 104.5}, []float64{got[0].TotalValue, got[1].TotalValue, got[2].TotalValue})
	assert.Equal(t, t0.Add(23*time.Hour), got[0].Timestamp)
	assert.Equal(t, t0.Add(47*time.Hour), got[1].Timestamp)

	assert.Empty(t, ResampleDaily(nil))
	daily := snaps(100, 101, 102)
	assert.Equal(t, daily, ResampleDaily(daily))
}

func TestSharpeRatio_HourlyResampledMatchesDaily(t *testing.T) {
	daily := SharpeRatio(snaps(100, 110, 104.5, 114.95))
	assert.InDelta(t, daily, SharpeRatio(ResampleDaily(hourly(100, 110, 104.5, 114.95))), 1e-9)
	assert.NotEqual(t, daily, SharpeRatio(hourly(100, 110, 104.5, 114.95)))
}

func TestSharpeRatio_DegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio(nil))
	assert.Equal(t, 0.0, SharpeRatio(snaps(100)))
	assert.Equal(t, 0.0, SharpeRatio(snaps(100, 110)), "one return has no sample deviation")
	assert.Equal(t, 0.0, SharpeRatio(snaps(100, 100, 100, 100)))
}

func TestSharpeRatio(t *testing.T) {
	// returns: +10%, -5%, +10%
	s := snaps(100, 110, 104.5, 114.95)
	r := []float64{0.1, -0.05, 0.1}
	mean := (r[0] + r[1] + r[2]) / 3
	variance := 0.0
	for _, x := range r {
		variance += (x - mean) * (x - mean)
	}
	want := mean / math.Sqrt(variance/2) * math.Sqrt(252)

	assert.InDelta(t, want, SharpeRatio(s), 1e-9)
}

func TestSummarize_NoTrades(t *testing.T) {
	r := Summarize(nil, snaps(1000, 1000), 1000)
	assert.True(t, r.NoTrades)
	assert.Equal(t, 0, r.TotalTrades)
	assert.Equal(t, 0.0, r.WinRate)
	assert.Equal(t, 0.0, r.AvgProfit)
	assert.Equal(t, 0.0, r.MaxProfit)
	assert.Equal(t, 0.0, r.MinProfit)
	assert.Equal(t, 1000.0, r.FinalValue)
	assert.Equal(t, 0.0, r.TotalReturnPct)
	assert.False(t, math.IsNaN(r.SharpeRatio))
}

func TestSummarize(t *testing.T) {
	trades := []Trade{
		{Level: -1, Profit: 10},
		{Level: -2, Profit: -4},
		{Level: -1, Profit: 6},
		{Level: -3, Profit: 0},
	}
	r := Summarize(trades, snaps(1000, 990, 1012), 1000)

	assert.False(t, r.NoTrades)
	assert.Equal(t, 4, r.TotalTrades)
	assert.Equal(t, 2, r.WinningTrades)
	assert.Equal(t, 1, r.LosingTrades)
	assert.Equal(t, 0.5, r.WinRate)
	assert.Equal(t, 12.0, r.TotalProfit)
	assert.Equal(t, 3.0, r.AvgProfit)
	assert.Equal(t, 10.0, r.MaxProfit)
	assert.Equal(t, -4.0, r.MinProfit)
	assert.Equal(t, 1012.0, r.FinalValue)
	assert.InDelta(t, 1.2, r.TotalReturnPct, 1e-9)
	assert.InDelta(t, -1.0, r.MaxDrawdownPct, 1e-9)
}

func TestProfitByLevel(t *testing.T) {
	trades := []Trade{
		{Level: -2, Profit: 4, BuyPrice: 90, SellPrice: 95},
		{Level: -1, Profit: 2, BuyPrice: 99, SellPrice: 100},
		{Level: -1, Profit: 4, BuyPrice: 97, SellPrice: 100},
	}
	got := ProfitByLevel(trades)
	require.Len(t, got, 2)

	assert.Equal(t, -1, got[0].Level)
	assert.Equal(t, 2, got[0].Trades)
	assert.Equal(t, 6.0, got[0].TotalProfit)
	assert.Equal(t, 3.0, got[0].AvgProfit)
	assert.Equal(t, 98.0, got[0].AvgBuyPrice)

	assert.Equal(t, -2, got[1].Level)
	assert.Empty(t, ProfitByLevel(nil))
}
