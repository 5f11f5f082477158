package strategy

import (
	"errors"
	"testing"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ladder(baseGap float64, n int) config.LadderConfig {
	weights := []float64{1, 1, 2, 3, 5, 8, 13, 21, 34, 55}
	return config.LadderConfig{BaseGap: baseGap, Ladders: n, Weights: weights[:n], UnitSize: 0.001}
}

func TestLoad(t *testing.T) {
	off := false
	zero := 0.0
	eth := ladder(0.008, 8)
	eth.FeeRate = &zero

	r, err := Load([]config.StrategyConfig{
		{Name: "btc", Pair: "BTCUSDT", Ladder: ladder(0.005, 10)},
		{Name: "eth", Pair: "ETHUSDT", Ladder: eth},
		{Name: "sol", Pair: "SOLUSDT", Enabled: &off, Ladder: ladder(0.038, 10)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"btc", "eth"}, r.Names())

	btc, ok := r.Get("btc")
	require.True(t, ok)
	assert.Len(t, btc.Plan.Levels, 10)
	assert.Equal(t, domain.DefaultFeeRate, btc.Plan.FeeRate)
	assert.Equal(t, domain.DefaultGapMax, btc.Plan.GapMax)
	assert.Equal(t, "BTC", btc.BaseAsset("USDT"))

	e, _ := r.Get("eth")
	assert.Equal(t, 0.0, e.Plan.FeeRate)
}

func TestLoad_InvalidStrategyNamed(t *testing.T) {
	_, err := Load([]config.StrategyConfig{
		{Name: "broken", Pair: "BTCUSDT", Ladder: config.LadderConfig{BaseGap: 0.01, Ladders: 3, Weights: []float64{1}, UnitSize: 1}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfig))
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, err.Error(), "weight_sequence")
}

func TestRegistry_Select(t *testing.T) {
	r, err := Load([]config.StrategyConfig{
		{Name: "b", Pair: "BTCUSDT", Ladder: ladder(0.005, 3)},
		{Name: "a", Pair: "ETHUSDT", Ladder: ladder(0.005, 3)},
	})
	require.NoError(t, err)

	all, err := r.Select("all")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)

	one, err := r.Select("b")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", one[0].Pair)

	_, err = r.Select("zzz")
	assert.True(t, errors.Is(err, ErrUnknownStrategy))
}

func TestStrategy_NewStateIsIndependent(t *testing.T) {
	s, err := Build(config.StrategyConfig{Name: "btc", Pair: "BTCUSDT", Ladder: ladder(0.005, 3)})
	require.NoError(t, err)

	a, b := s.NewState(), s.NewState()
	_, err = a.SetReferencePrice(50000)
	require.NoError(t, err)

	assert.Equal(t, 50000.0, a.ReferencePrice())
	assert.Equal(t, 0.0, b.ReferencePrice())
}
