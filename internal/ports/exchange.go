package ports

import (
	"context"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// ExchangeGateway places and tracks limit orders on a spot exchange.
// Implementations own rounding to the venue's tick and lot sizes.
type ExchangeGateway interface {
	// GetPrice returns the last traded price for symbol.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// GetBalance returns the free/locked balance of one asset.
	GetBalance(ctx context.Context, asset string) (domain.Balance, error)

	// PlaceLimitOrder submits a GTC limit order and returns it as accepted.
	PlaceLimitOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error)

	// CancelOrder cancels an open order. Cancelling a terminal order is not an error.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// GetOrderStatus returns the current state of an order.
	GetOrderStatus(ctx context.Context, symbol, orderID string) (domain.Order, error)
}

// PriceProvider returns the latest price of a symbol.
type PriceProvider interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// FiltersProvider returns the exchange's price/quantity rules for a symbol.
type FiltersProvider interface {
	GetSymbolFilters(ctx context.Context, symbol string) (domain.SymbolFilters, error)
}
