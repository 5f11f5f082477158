// Package paper simulates a spot exchange in memory against real prices.
// It implements ports.ExchangeGateway so the trader can run without keys.
package paper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance is returned when an order cannot be funded.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnknownOrder is returned for order ids the gateway never issued.
	ErrUnknownOrder = errors.New("unknown order")
	// ErrUnknownSymbol is returned for symbols not registered with AddSymbol.
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// Market describes a tradable symbol.
type Market struct {
	Symbol  string
	Base    string
	Quote   string
	Filters domain.SymbolFilters
}

type balance struct {
	free   decimal.Decimal
	locked decimal.Decimal
}

// entry keeps the exact rounded price and quantity next to the public order.
type entry struct {
	domain.Order
	price decimal.Decimal
	qty   decimal.Decimal
}

func (e *entry) reserved(feeRate decimal.Decimal) decimal.Decimal {
	if e.Side == domain.SideBuy {
		return e.price.Mul(e.qty).Mul(decimal.NewFromInt(1).Add(feeRate))
	}
	return e.qty
}

// Gateway is an in-memory exchange. Orders fill at their limit price the
// first time a status query observes the market price crossing it.
type Gateway struct {
	mu       sync.Mutex
	prices   ports.PriceProvider
	feeRate  decimal.Decimal
	markets  map[string]Market
	balances map[string]*balance
	orders   map[string]*entry
	now      func() time.Time
}

// NewGateway crea un exchange simulado que cobra feeRate sobre el lado quote.
func NewGateway(prices ports.PriceProvider, feeRate float64) *Gateway {
	return &Gateway{
		prices:   prices,
		feeRate:  decimal.NewFromFloat(feeRate),
		markets:  make(map[string]Market),
		balances: make(map[string]*balance),
		orders:   make(map[string]*entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddSymbol registra un par operable con sus filtros.
func (g *Gateway) AddSymbol(m Market) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m.Filters.Symbol == "" {
		m.Filters.Symbol = m.Symbol
	}
	g.markets[m.Symbol] = m
}

// Deposit acredita amount al saldo libre de asset.
func (g *Gateway) Deposit(asset string, amount float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.balance(asset)
	b.free = b.free.Add(decimal.NewFromFloat(amount))
}

// GetPrice implementa ports.ExchangeGateway.
func (g *Gateway) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return g.prices.GetPrice(ctx, symbol)
}

// GetBalance implementa ports.ExchangeGateway.
func (g *Gateway) GetBalance(_ context.Context, asset string) (domain.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.balance(asset)
	return domain.Balance{Asset: asset, Free: b.free.InexactFloat64(), Locked: b.locked.InexactFloat64()}, nil
}

// PlaceLimitOrder implementa ports.ExchangeGateway. Redondea precio y cantidad
// a los filtros del par y bloquea el saldo necesario.
func (g *Gateway) PlaceLimitOrder(_ context.Context, req domain.OrderRequest) (domain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.markets[req.Symbol]
	if !ok {
		return domain.Order{}, fmt.Errorf("paper.PlaceLimitOrder %s: %w", req.Symbol, ErrUnknownSymbol)
	}
	price, qty, err := m.Filters.Apply(req.Price, req.Quantity)
	if err != nil {
		return domain.Order{}, fmt.Errorf("paper.PlaceLimitOrder: %w", err)
	}

	now := g.now()
	o := &entry{
		Order: domain.Order{
			ID:        uuid.New().String(),
			ClientID:  req.ClientID,
			Symbol:    m.Symbol,
			Side:      req.Side,
			Price:     price.InexactFloat64(),
			Quantity:  qty.InexactFloat64(),
			Status:    domain.OrderNew,
			CreatedAt: now,
			UpdatedAt: now,
		},
		price: price,
		qty:   qty,
	}

	asset := m.Quote
	switch req.Side {
	case domain.SideBuy:
	case domain.SideSell:
		asset = m.Base
	default:
		return domain.Order{}, fmt.Errorf("paper.PlaceLimitOrder: side %q: %w", req.Side, domain.ErrValidation)
	}
	if err := g.lock(asset, o.reserved(g.feeRate)); err != nil {
		return domain.Order{}, fmt.Errorf("paper.PlaceLimitOrder: %s %s %s: %w", req.Side, qty, m.Symbol, err)
	}
	g.orders[o.ID] = o

	slog.Debug("paper: order placed",
		"id", o.ID,
		"symbol", o.Symbol,
		"side", o.Side,
		"price", price.String(),
		"qty", qty.String(),
	)
	return o.Order, nil
}

// CancelOrder implementa ports.ExchangeGateway. Libera el saldo bloqueado.
func (g *Gateway) CancelOrder(_ context.Context, symbol, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok || o.Symbol != symbol {
		return fmt.Errorf("paper.CancelOrder %s: %w", orderID, ErrUnknownOrder)
	}
	if o.Status.Terminal() {
		return nil
	}

	m := g.markets[o.Symbol]
	asset := m.Quote
	if o.Side == domain.SideSell {
		asset = m.Base
	}
	g.unlock(asset, o.reserved(g.feeRate))
	o.Status = domain.OrderCancelled
	o.UpdatedAt = g.now()
	return nil
}

// GetOrderStatus implementa ports.ExchangeGateway. Si la orden sigue abierta,
// consulta el precio y la ejecuta cuando el mercado cruza el límite.
func (g *Gateway) GetOrderStatus(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	g.mu.Lock()
	o, ok := g.orders[orderID]
	if !ok || o.Symbol != symbol {
		g.mu.Unlock()
		return domain.Order{}, fmt.Errorf("paper.GetOrderStatus %s: %w", orderID, ErrUnknownOrder)
	}
	if o.Status.Terminal() {
		out := o.Order
		g.mu.Unlock()
		return out, nil
	}
	g.mu.Unlock()

	market, err := g.prices.GetPrice(ctx, symbol)
	if err != nil {
		return domain.Order{}, fmt.Errorf("paper.GetOrderStatus: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// re-check: a concurrent cancel may have landed while fetching the price
	if !o.Status.Terminal() && crosses(&o.Order, market) {
		g.fill(o)
	}
	return o.Order, nil
}

func crosses(o *domain.Order, market float64) bool {
	if o.Side == domain.SideBuy {
		return market <= o.Price
	}
	return market >= o.Price
}

// fill liquida la orden a su precio límite. Debe llamarse con g.mu tomado.
func (g *Gateway) fill(o *entry) {
	m := g.markets[o.Symbol]
	qty := o.qty
	notional := o.price.Mul(qty)
	fee := notional.Mul(g.feeRate)

	if o.Side == domain.SideBuy {
		quote := g.balance(m.Quote)
		quote.locked = quote.locked.Sub(notional.Add(fee))
		base := g.balance(m.Base)
		base.free = base.free.Add(qty)
	} else {
		base := g.balance(m.Base)
		base.locked = base.locked.Sub(qty)
		quote := g.balance(m.Quote)
		quote.free = quote.free.Add(notional.Sub(fee))
	}

	o.Status = domain.OrderFilled
	o.FilledPrice = o.Price
	o.FilledQty = o.Quantity
	o.Fee = fee.InexactFloat64()
	o.UpdatedAt = g.now()

	slog.Info("paper: order filled",
		"id", o.ID,
		"symbol", o.Symbol,
		"side", o.Side,
		"price", o.Price,
		"qty", o.Quantity,
		"fee", o.Fee,
	)
}

func (g *Gateway) balance(asset string) *balance {
	b, ok := g.balances[asset]
	if !ok {
		b = &balance{}
		g.balances[asset] = b
	}
	return b
}

func (g *Gateway) lock(asset string, amount decimal.Decimal) error {
	b := g.balance(asset)
	if b.free.LessThan(amount) {
		return fmt.Errorf("%w: need %s %s, free %s", ErrInsufficientBalance, amount.StringFixed(8), asset, b.free.StringFixed(8))
	}
	b.free = b.free.Sub(amount)
	b.locked = b.locked.Add(amount)
	return nil
}

func (g *Gateway) unlock(asset string, amount decimal.Decimal) {
	b := g.balance(asset)
	b.locked = b.locked.Sub(amount)
	b.free = b.free.Add(amount)
}
