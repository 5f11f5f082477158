// Package trader drives a ladder against an ExchangeGateway, one polling
// cycle at a time. It is the live counterpart of the backtest engine: the
// same LadderState transitions, fed by exchange fills instead of bar lows
// and highs.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/metrics"
	"github.com/alejandrodnm/gridbot/internal/ports"
	"github.com/google/uuid"
)

// ErrNotStarted is returned by RunOnce before Start has priced the ladder.
var ErrNotStarted = errors.New("trader: not started")

// Config holds per-strategy trading settings.
type Config struct {
	Strategy    string
	Symbol      string
	MaxLosses   int           // consecutive losing trades before cooldown; 0 disables
	Cooldown    time.Duration // pause after MaxLosses
	MaxDrawdown float64       // realized loss in quote that halts new buys; 0 disables
}

// tracked is an open order the engine placed for a level.
type tracked struct {
	level int
	order domain.Order
}

// Engine owns one strategy's LadderState and Portfolio. It is not safe for
// concurrent use; run one goroutine per Engine.
type Engine struct {
	gw        ports.ExchangeGateway
	store     ports.LedgerStorage // optional
	cfg       Config
	state     *domain.LadderState
	portfolio *domain.Portfolio
	breaker   domain.CircuitBreaker
	orders    map[string]tracked
	lastPrice float64
	started   bool
	now       func() time.Time
}

// New creates an engine. store may be nil.
func New(gw ports.ExchangeGateway, state *domain.LadderState, portfolio *domain.Portfolio, store ports.LedgerStorage, cfg Config) *Engine {
	return &Engine{
		gw:        gw,
		store:     store,
		cfg:       cfg,
		state:     state,
		portfolio: portfolio,
		breaker: domain.CircuitBreaker{
			MaxLosses:        cfg.MaxLosses,
			CooldownDuration: cfg.Cooldown,
			MaxDrawdown:      -math.Abs(cfg.MaxDrawdown),
		},
		orders: make(map[string]tracked),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CycleResult contains everything produced by one trading cycle.
type CycleResult struct {
	Strategy    string
	Price       float64
	Reference   float64
	Placed      int
	BuysFilled  int
	SellsFilled int
	Cancelled   int
	Skipped     int
	Resets      int
	OpenOrders  int
	Trades      []domain.Trade
	Snapshot    domain.Snapshot
	Stats       domain.PortfolioStats
	BreakerOpen bool
	BreakerNote string
	Errors      []string
}

func (r *CycleResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// State exposes the ladder for rendering.
func (e *Engine) State() *domain.LadderState { return e.state }

// Portfolio exposes the ledger for rendering.
func (e *Engine) Portfolio() *domain.Portfolio { return e.portfolio }

// LastPrices returns the price seen by the latest cycle, keyed by symbol,
// for marking the portfolio.
func (e *Engine) LastPrices() map[string]float64 {
	return map[string]float64{e.cfg.Symbol: e.lastPrice}
}

// OpenOrders returns how many orders are being tracked.
func (e *Engine) OpenOrders() int { return len(e.orders) }

// Start prices the ladder at the current market and places buy orders for
// pending levels below it.
func (e *Engine) Start(ctx context.Context) (*CycleResult, error) {
	price, err := e.gw.GetPrice(ctx, e.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("trader.Start %s: %w", e.cfg.Symbol, err)
	}
	unusable, err := e.state.SetReferencePrice(price)
	if err != nil {
		return nil, fmt.Errorf("trader.Start %s: %w", e.cfg.Symbol, err)
	}
	e.started = true

	slog.Info("trader: ladder priced",
		"strategy", e.cfg.Strategy,
		"symbol", e.cfg.Symbol,
		"reference", price,
		"levels", len(e.state.Levels()),
		"unusable", unusable,
		"required_capital", e.state.RequiredCapital(),
	)

	result := &CycleResult{Strategy: e.cfg.Strategy, Price: price}
	e.placeBuys(ctx, price, result)
	e.finish(ctx, price, result)
	return result, nil
}

// RunOnce polls every tracked order, applies fills to the ladder and the
// ledger, resets the ladder when a cycle completes and tops up orders.
func (e *Engine) RunOnce(ctx context.Context) (*CycleResult, error) {
	if !e.started {
		return nil, ErrNotStarted
	}
	price, err := e.gw.GetPrice(ctx, e.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("trader.RunOnce %s: %w", e.cfg.Symbol, err)
	}
	result := &CycleResult{Strategy: e.cfg.Strategy, Price: price}

	e.checkFills(ctx, result)

	if e.state.AllClosed() {
		e.resetLadder(ctx, price, result)
	}

	e.placeSells(ctx, result)
	e.placeBuys(ctx, price, result)
	e.finish(ctx, price, result)
	return result, nil
}

// Shutdown cancels every tracked order. Open positions stay on the exchange;
// an order that filled before its cancel landed is booked like any other fill.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error
	result := &CycleResult{Strategy: e.cfg.Strategy}
	for _, id := range e.trackedIDs() {
		o, err := e.cancel(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if o.Status == domain.OrderFilled {
			e.applyFill(ctx, id, o, result)
		}
	}
	for _, msg := range result.Errors {
		errs = append(errs, errors.New(msg))
	}
	if len(errs) > 0 {
		return fmt.Errorf("trader.Shutdown %s: %w", e.cfg.Strategy, errors.Join(errs...))
	}
	slog.Info("trader: shutdown complete",
		"strategy", e.cfg.Strategy,
		"open_positions", len(e.state.ActiveLevels()),
	)
	return nil
}

// checkFills consulta cada orden abierta. Una orden FILLED se procesa una sola
// vez: se elimina de la tabla antes de tocar el estado.
func (e *Engine) checkFills(ctx context.Context, result *CycleResult) {
	for _, id := range e.trackedIDs() {
		t := e.orders[id]
		o, err := e.gw.GetOrderStatus(ctx, e.cfg.Symbol, id)
		if err != nil {
			slog.Warn("trader: order status failed", "strategy", e.cfg.Strategy, "order", id, "err", err)
			result.errorf("status %s: %v", id, err)
			continue
		}

		switch o.Status {
		case domain.OrderFilled:
			e.applyFill(ctx, id, o, result)
		case domain.OrderCancelled, domain.OrderRejected:
			delete(e.orders, id)
			e.persistOrder(ctx, o)
			slog.Warn("trader: order closed without fill",
				"strategy", e.cfg.Strategy, "order", id, "level", t.level, "status", o.Status)
		default:
			t.order = o
			e.orders[id] = t
		}
	}
}

// applyFill saca la orden de la tabla antes de tocar el estado, así cada
// fill se aplica una sola vez.
func (e *Engine) applyFill(ctx context.Context, id string, o domain.Order, result *CycleResult) {
	t := e.orders[id]
	delete(e.orders, id)
	e.persistOrder(ctx, o)
	if o.Side == domain.SideBuy {
		e.onBuyFilled(ctx, t.level, o, result)
	} else {
		e.onSellFilled(ctx, t.level, o, result)
	}
}

func (e *Engine) onBuyFilled(ctx context.Context, level int, o domain.Order, result *CycleResult) {
	ls, err := e.state.Level(level)
	if err != nil {
		result.errorf("buy fill %s: %v", o.ID, err)
		return
	}
	at := o.UpdatedAt
	low := math.Min(o.FilledPrice, ls.BuyPrice)
	if !e.state.TryFillBuyAt(level, low, o.FilledPrice, o.FilledQty, at) {
		slog.Warn("trader: buy fill rejected by ladder", "strategy", e.cfg.Strategy, "level", level, "status", ls.Status)
		result.errorf("buy fill %s: level %d is %s", o.ID, level, ls.Status)
		return
	}

	pos := domain.Position{
		Strategy: e.cfg.Strategy,
		Level:    level,
		Symbol:   e.cfg.Symbol,
		BuyPrice: o.FilledPrice,
		Quantity: o.FilledQty,
		Cost:     domain.BuyCost(o.FilledPrice, o.FilledQty, e.state.Plan().FeeRate),
		OpenedAt: at,
	}
	if err := e.portfolio.OpenPosition(pos); err != nil {
		result.errorf("open position level %d: %v", level, err)
	}

	result.BuysFilled++
	metrics.Fills.WithLabelValues(e.cfg.Strategy, "buy").Inc()
	slog.Info("trader: buy filled",
		"strategy", e.cfg.Strategy,
		"level", level,
		"price", o.FilledPrice,
		"qty", o.FilledQty,
	)
}

func (e *Engine) onSellFilled(ctx context.Context, level int, o domain.Order, result *CycleResult) {
	ls, err := e.state.Level(level)
	if err != nil {
		result.errorf("sell fill %s: %v", o.ID, err)
		return
	}
	high := math.Max(o.FilledPrice, ls.SellPrice)
	trade, ok := e.state.TryFillSellAt(level, high, o.FilledPrice, o.UpdatedAt)
	if !ok {
		slog.Warn("trader: sell fill rejected by ladder", "strategy", e.cfg.Strategy, "level", level, "status", ls.Status)
		result.errorf("sell fill %s: level %d is %s", o.ID, level, ls.Status)
		return
	}

	if err := e.portfolio.ClosePosition(e.cfg.Strategy, trade); err != nil {
		result.errorf("close position level %d: %v", level, err)
	}
	e.breaker.Record(trade.Profit, e.now())

	if e.store != nil {
		if err := e.store.SaveTrade(ctx, domain.StrategyTrade{Strategy: e.cfg.Strategy, Trade: trade}); err != nil {
			slog.Warn("trader: save trade failed", "strategy", e.cfg.Strategy, "err", err)
		}
	}

	result.SellsFilled++
	result.Trades = append(result.Trades, trade)
	metrics.Fills.WithLabelValues(e.cfg.Strategy, "sell").Inc()
	slog.Info("trader: sell filled",
		"strategy", e.cfg.Strategy,
		"level", level,
		"price", o.FilledPrice,
		"profit", trade.Profit,
		"roi", trade.ROI,
	)
}

// resetLadder cancela las compras pendientes del ciclo anterior y vuelve a
// valorar la escalera al precio actual. Si alguna compra se ejecutó antes de
// la cancelación, el nivel queda activo y el reset se pospone.
func (e *Engine) resetLadder(ctx context.Context, price float64, result *CycleResult) {
	for _, id := range e.trackedIDs() {
		if e.orders[id].order.Side != domain.SideBuy {
			continue
		}
		o, err := e.cancel(ctx, id)
		if err != nil {
			result.errorf("cancel %s: %v", id, err)
			continue
		}
		if o.Status == domain.OrderFilled {
			e.applyFill(ctx, id, o, result)
			continue
		}
		result.Cancelled++
	}
	if !e.state.AllClosed() {
		slog.Info("trader: ladder reset postponed, buy filled during cancel", "strategy", e.cfg.Strategy)
		return
	}

	n := e.state.ResetClosedToPending()
	if _, err := e.state.SetReferencePrice(price); err != nil {
		result.errorf("reprice: %v", err)
		return
	}
	result.Resets++
	slog.Info("trader: ladder reset",
		"strategy", e.cfg.Strategy,
		"levels_reset", n,
		"reference", price,
		"cycles", e.state.Cycles(),
	)
}

// placeBuys coloca órdenes de compra para los niveles pendientes por debajo
// del mercado que aún no tienen orden, si el breaker lo permite.
func (e *Engine) placeBuys(ctx context.Context, price float64, result *CycleResult) {
	if !e.breaker.IsOpen(e.now()) {
		return
	}
	busy := e.levelsWithOrders()
	available := e.portfolio.Cash() - e.reservedCash()
	fee := e.state.Plan().FeeRate

	for _, ls := range e.state.PendingLevels() {
		if busy[ls.ID] || ls.BuyPrice >= price {
			continue
		}
		cost := domain.BuyCost(ls.BuyPrice, ls.Quantity, fee)
		if cost > available {
			result.Skipped++
			metrics.Skips.WithLabelValues(e.cfg.Strategy, string(domain.SkipInsufficientFunds)).Inc()
			slog.Debug("trader: buy skipped",
				"strategy", e.cfg.Strategy,
				"level", ls.ID,
				"required", cost,
				"available", available,
			)
			continue
		}
		if e.place(ctx, ls.ID, domain.SideBuy, ls.BuyPrice, ls.Quantity, result) {
			available -= cost
		}
	}
}

// placeSells asegura una orden de venta por cada nivel activo.
func (e *Engine) placeSells(ctx context.Context, result *CycleResult) {
	busy := e.levelsWithOrders()
	for _, ls := range e.state.ActiveLevels() {
		if busy[ls.ID] {
			continue
		}
		e.place(ctx, ls.ID, domain.SideSell, ls.SellPrice, ls.FilledQuantity, result)
	}
}

func (e *Engine) place(ctx context.Context, level int, side domain.OrderSide, price, qty float64, result *CycleResult) bool {
	req := domain.OrderRequest{
		ClientID: clientID(e.cfg.Strategy, level, side),
		Symbol:   e.cfg.Symbol,
		Side:     side,
		Price:    price,
		Quantity: qty,
	}
	o, err := e.gw.PlaceLimitOrder(ctx, req)
	if err != nil {
		slog.Warn("trader: place order failed",
			"strategy", e.cfg.Strategy, "level", level, "side", side, "price", price, "qty", qty, "err", err)
		result.errorf("place %s level %d: %v", side, level, err)
		return false
	}
	e.orders[o.ID] = tracked{level: level, order: o}
	result.Placed++

	if e.store != nil {
		if err := e.store.SaveOrder(ctx, e.cfg.Strategy, level, o); err != nil {
			slog.Warn("trader: save order failed", "strategy", e.cfg.Strategy, "order", o.ID, "err", err)
		}
	}
	return true
}

// cancel cancela la orden y vuelve a consultar su estado final. Una orden que
// el exchange ya había ejecutado se devuelve FILLED y sigue en la tabla para
// que el llamador aplique el fill.
func (e *Engine) cancel(ctx context.Context, id string) (domain.Order, error) {
	if err := e.gw.CancelOrder(ctx, e.cfg.Symbol, id); err != nil {
		return domain.Order{}, fmt.Errorf("cancel %s: %w", id, err)
	}

	o, err := e.gw.GetOrderStatus(ctx, e.cfg.Symbol, id)
	if err != nil {
		slog.Warn("trader: status after cancel failed, assuming cancelled",
			"strategy", e.cfg.Strategy, "order", id, "err", err)
		o = e.orders[id].order
	}
	if o.Status == domain.OrderFilled {
		return o, nil
	}

	delete(e.orders, id)
	if !o.Status.Terminal() {
		o.Status = domain.OrderCancelled
		o.UpdatedAt = e.now()
	}
	e.persistOrder(ctx, o)
	return o, nil
}

func (e *Engine) persistOrder(ctx context.Context, o domain.Order) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateOrder(ctx, o); err != nil {
		slog.Warn("trader: update order failed", "strategy", e.cfg.Strategy, "order", o.ID, "err", err)
	}
}

// finish registra el snapshot del ciclo y actualiza métricas.
func (e *Engine) finish(ctx context.Context, price float64, result *CycleResult) {
	e.lastPrice = price
	prices := e.LastPrices()
	now := e.now()

	result.Reference = e.state.ReferencePrice()
	result.OpenOrders = len(e.orders)
	result.Snapshot = e.portfolio.Snapshot(now, prices)
	result.Stats = e.portfolio.Statistics(prices)
	result.BreakerOpen = e.breaker.IsOpen(now)
	if !result.BreakerOpen {
		result.BreakerNote = e.breaker.TriggeredReason
	}

	if e.store != nil {
		if err := e.store.SaveSnapshot(ctx, e.cfg.Strategy, result.Snapshot); err != nil {
			slog.Warn("trader: save snapshot failed", "strategy", e.cfg.Strategy, "err", err)
		}
	}

	metrics.RealizedPnL.WithLabelValues(e.cfg.Strategy).Set(result.Stats.RealizedPnL)
	metrics.PortfolioValue.WithLabelValues(e.cfg.Strategy).Set(result.Stats.TotalValue)
	metrics.ActiveLevels.WithLabelValues(e.cfg.Strategy).Set(float64(len(e.state.ActiveLevels())))
	blocking := 0.0
	if !result.BreakerOpen {
		blocking = 1
	}
	metrics.BreakerOpen.WithLabelValues(e.cfg.Strategy).Set(blocking)
}

// reservedCash is the quote committed to open buy orders.
func (e *Engine) reservedCash() float64 {
	fee := e.state.Plan().FeeRate
	total := 0.0
	for _, t := range e.orders {
		if t.order.Side == domain.SideBuy {
			total += domain.BuyCost(t.order.Price, t.order.Quantity, fee)
		}
	}
	return total
}

func (e *Engine) levelsWithOrders() map[int]bool {
	out := make(map[int]bool, len(e.orders))
	for _, t := range e.orders {
		out[t.level] = true
	}
	return out
}

// trackedIDs returns order ids sorted by level, shallowest first, so each
// cycle processes fills in a stable order.
func (e *Engine) trackedIDs() []string {
	ids := make([]string, 0, len(e.orders))
	for id := range e.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := e.orders[ids[i]], e.orders[ids[j]]
		if a.level != b.level {
			return a.level > b.level
		}
		return ids[i] < ids[j]
	})
	return ids
}

func clientID(strategy string, level int, side domain.OrderSide) string {
	return fmt.Sprintf("%s_%d_%c_%s", strategy, -level, side[0], uuid.NewString()[:8])
}
