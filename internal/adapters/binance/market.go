package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/shopspring/decimal"
)

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetPrice implementa ports.PriceProvider con /api/v3/ticker/price.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var t tickerPrice
	if err := c.get(ctx, "/api/v3/ticker/price", q, &t); err != nil {
		return 0, fmt.Errorf("binance.GetPrice %s: %w", symbol, err)
	}
	p, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance.GetPrice %s: parse %q: %w", symbol, t.Price, err)
	}
	return p, nil
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol  string         `json:"symbol"`
		Status  string         `json:"status"`
		Filters []symbolFilter `json:"filters"`
	} `json:"symbols"`
}

type symbolFilter struct {
	FilterType  string `json:"filterType"`
	TickSize    string `json:"tickSize"`
	StepSize    string `json:"stepSize"`
	MinQty      string `json:"minQty"`
	MinNotional string `json:"minNotional"`
}

// GetSymbolFilters implementa ports.FiltersProvider con /api/v3/exchangeInfo.
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (domain.SymbolFilters, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var info exchangeInfo
	if err := c.get(ctx, "/api/v3/exchangeInfo", q, &info); err != nil {
		return domain.SymbolFilters{}, fmt.Errorf("binance.GetSymbolFilters %s: %w", symbol, err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		return mapFilters(symbol, s.Filters)
	}
	return domain.SymbolFilters{}, fmt.Errorf("binance.GetSymbolFilters: symbol %s not listed", symbol)
}

func mapFilters(symbol string, filters []symbolFilter) (domain.SymbolFilters, error) {
	out := domain.SymbolFilters{Symbol: symbol}
	var err error
	for _, f := range filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			out.TickSize, err = parseDecimal(f.TickSize)
		case "LOT_SIZE":
			if out.StepSize, err = parseDecimal(f.StepSize); err == nil {
				out.MinQty, err = parseDecimal(f.MinQty)
			}
		case "NOTIONAL", "MIN_NOTIONAL":
			out.MinNotional, err = parseDecimal(f.MinNotional)
		}
		if err != nil {
			return domain.SymbolFilters{}, fmt.Errorf("binance: %s filter %s: %w", symbol, f.FilterType, err)
		}
	}
	return out, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
