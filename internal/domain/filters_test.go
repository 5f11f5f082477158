package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func btcFilters() SymbolFilters {
	return SymbolFilters{
		Symbol:      "BTCUSDT",
		TickSize:    decimal.RequireFromString("0.01"),
		StepSize:    decimal.RequireFromString("0.00001"),
		MinQty:      decimal.RequireFromString("0.00001"),
		MinNotional: decimal.RequireFromString("5"),
	}
}

func TestSymbolFilters_Round(t *testing.T) {
	f := btcFilters()
	assert.Equal(t, "49750.12", f.RoundPrice(49750.129).String())
	assert.Equal(t, "0.00123", f.RoundQuantity(0.001239).String())
}

func TestSymbolFilters_NoRulesPassThrough(t *testing.T) {
	f := SymbolFilters{}
	assert.Equal(t, "1.23456", f.RoundPrice(1.23456).String())
}

func TestSymbolFilters_Apply(t *testing.T) {
	f := btcFilters()

	p, q, err := f.Apply(49750.129, 0.001239)
	require.NoError(t, err)
	assert.Equal(t, "49750.12", p.String())
	assert.Equal(t, "0.00123", q.String())

	_, _, err = f.Apply(49750, 0.000001)
	assert.True(t, errors.Is(err, ErrValidation), "quantity rounds to zero")

	_, _, err = f.Apply(100, 0.01)
	assert.True(t, errors.Is(err, ErrValidation), "notional 1 below 5")
}
