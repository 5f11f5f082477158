package trader_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/gridbot/internal/adapters/paper"
	"github.com/alejandrodnm/gridbot/internal/application/engine/trader"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const symbol = "BTCUSDT"

type marketPrices map[string]float64

func (m marketPrices) GetPrice(_ context.Context, s string) (float64, error) {
	p, ok := m[s]
	if !ok {
		return 0, errors.New("no price")
	}
	return p, nil
}

// twoLevelState: ref 100 → level -1 buys 99 sells 100, level -2 buys 98.01 sells 99.
func twoLevelState(t *testing.T, fee float64) *domain.LadderState {
	t.Helper()
	plan, err := domain.BuildPlan(domain.LadderConfig{
		BaseGap:        0.01,
		LadderCount:    2,
		WeightSequence: []float64{1, 1},
		UnitSize:       0.01,
		FeeRate:        fee,
	})
	require.NoError(t, err)
	return domain.NewLadderState(plan)
}

func newGateway(prices marketPrices, fee, capital float64) *paper.Gateway {
	gw := paper.NewGateway(prices, fee)
	gw.AddSymbol(paper.Market{
		Symbol: symbol,
		Base:   "BTC",
		Quote:  "USDT",
		Filters: domain.SymbolFilters{
			TickSize: decimal.RequireFromString("0.0001"),
			StepSize: decimal.RequireFromString("0.00000001"),
		},
	})
	gw.Deposit("USDT", capital)
	return gw
}

type fixture struct {
	prices marketPrices
	gw     *paper.Gateway
	engine *trader.Engine
	store  *fakeLedger
}

func newFixture(t *testing.T, fee, capital float64, cfg trader.Config) *fixture {
	t.Helper()
	prices := marketPrices{symbol: 100}
	gw := newGateway(prices, fee, capital)
	store := &fakeLedger{}
	cfg.Strategy = "test"
	cfg.Symbol = symbol
	e := trader.New(gw, twoLevelState(t, fee), domain.NewPortfolio(capital), store, cfg)
	return &fixture{prices: prices, gw: gw, engine: e, store: store}
}

func TestEngine_RunOnceBeforeStart(t *testing.T) {
	f := newFixture(t, 0.001, 100, trader.Config{})

	_, err := f.engine.RunOnce(context.Background())
	assert.ErrorIs(t, err, trader.ErrNotStarted)
}

func TestEngine_StartPlacesBuysBelowMarket(t *testing.T) {
	f := newFixture(t, 0.001, 100, trader.Config{})
	ctx := context.Background()

	res, err := f.engine.Start(ctx)
	require.NoError(t, err)

	assert.Equal(t, 100.0, res.Reference)
	assert.Equal(t, 2, res.Placed)
	assert.Equal(t, 2, res.OpenOrders)
	assert.Len(t, f.store.orders, 2)
	assert.Len(t, f.store.snapshots, 1)

	usdt, err := f.gw.GetBalance(ctx, "USDT")
	require.NoError(t, err)
	// 0.99 + 1.98 of notional plus 0.1% fee
	assert.InDelta(t, 2.97*1.001, usdt.Locked, 1e-3)
}

func TestEngine_FullCycle(t *testing.T) {
	f := newFixture(t, 0.001, 100, trader.Config{})
	ctx := context.Background()

	_, err := f.engine.Start(ctx)
	require.NoError(t, err)

	// shallow level buys, deep level untouched
	f.prices[symbol] = 98.5
	res, err := f.engine.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.BuysFilled)
	assert.Equal(t, 1, res.Placed, "sell placed for the filled level")
	assert.Equal(t, 2, res.OpenOrders)
	assert.Equal(t, 1, res.Stats.OpenPositions)

	lvl, err := f.engine.State().Level(-1)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelActive, lvl.Status)

	// a second poll at the same price must not fill again
	res, err = f.engine.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.BuysFilled)
	assert.Zero(t, res.Placed)

	// sell fills; no level is active any more so the ladder resets at 100.5
	f.prices[symbol] = 100.5
	res, err = f.engine.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SellsFilled)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, -1, res.Trades[0].Level)
	// 0.01 × (100 × 0.999 − 99 × 1.001)
	assert.InDelta(t, 0.00801, res.Trades[0].Profit, 1e-4)

	assert.Equal(t, 1, res.Resets)
	assert.Equal(t, 1, res.Cancelled, "stale deep buy cancelled")
	assert.Equal(t, 2, res.Placed, "both levels re-placed at the new reference")
	assert.Equal(t, 100.5, res.Reference)
	assert.Equal(t, 1, f.engine.State().Cycles())

	assert.InDelta(t, 0.00801, res.Stats.RealizedPnL, 1e-4)
	assert.Zero(t, res.Stats.OpenPositions)
	assert.Len(t, f.store.trades, 1)
	assert.Len(t, f.engine.Portfolio().Trades(), 1)
}

func TestEngine_SkipsUnaffordableLevels(t *testing.T) {
	// level -1 costs ~0.991, level -2 ~1.982
	f := newFixture(t, 0.001, 1.5, trader.Config{})

	res, err := f.engine.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Placed)
	assert.Equal(t, 1, res.Skipped)
}

func TestEngine_BreakerBlocksBuysAfterLoss(t *testing.T) {
	// a 2% fee on a 1% gap loses money on every round trip
	f := newFixture(t, 0.02, 100, trader.Config{MaxLosses: 1, Cooldown: time.Hour})
	ctx := context.Background()

	_, err := f.engine.Start(ctx)
	require.NoError(t, err)

	f.prices[symbol] = 98.5
	_, err = f.engine.RunOnce(ctx)
	require.NoError(t, err)

	f.prices[symbol] = 100.5
	res, err := f.engine.RunOnce(ctx)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Negative(t, res.Trades[0].Profit)
	assert.Equal(t, 1, res.Resets)
	assert.Zero(t, res.Placed, "breaker blocks new buys")
	assert.False(t, res.BreakerOpen)
	assert.Equal(t, "consecutive losses", res.BreakerNote)
}

func TestEngine_StatusErrorIsReportedNotFatal(t *testing.T) {
	prices := marketPrices{symbol: 100}
	gw := &flakyGateway{Gateway: newGateway(prices, 0.001, 100)}
	e := trader.New(gw, twoLevelState(t, 0.001), domain.NewPortfolio(100), nil, trader.Config{Strategy: "test", Symbol: symbol})
	ctx := context.Background()

	_, err := e.Start(ctx)
	require.NoError(t, err)

	gw.failStatus = true
	res, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, 2, res.OpenOrders, "orders stay tracked")
}

func TestEngine_Shutdown(t *testing.T) {
	f := newFixture(t, 0.001, 100, trader.Config{})
	ctx := context.Background()

	_, err := f.engine.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, f.engine.Shutdown(ctx))
	assert.Zero(t, f.engine.OpenOrders())

	usdt, err := f.gw.GetBalance(ctx, "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 0, usdt.Locked, 1e-9)
	assert.InDelta(t, 100, usdt.Free, 1e-9)
	assert.Equal(t, 2, f.store.cancelled())
}

func TestEngine_BuyFilledDuringResetCancelIsBooked(t *testing.T) {
	prices := marketPrices{symbol: 100}
	gw := &fillBeforeCancelGateway{Gateway: newGateway(prices, 0.001, 100), prices: prices, fillAt: 97}
	store := &fakeLedger{}
	e := trader.New(gw, twoLevelState(t, 0.001), domain.NewPortfolio(100), store, trader.Config{Strategy: "test", Symbol: symbol})
	ctx := context.Background()

	_, err := e.Start(ctx)
	require.NoError(t, err)

	prices[symbol] = 98.5
	_, err = e.RunOnce(ctx)
	require.NoError(t, err)

	// the shallow sell fills and the ladder tries to reset, but the deep buy
	// fills on the exchange before the cancel reaches it
	prices[symbol] = 100.5
	res, err := e.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.SellsFilled)
	assert.Equal(t, 1, res.BuysFilled)
	assert.Zero(t, res.Cancelled)
	assert.Zero(t, res.Resets, "an active level postpones the reset")
	assert.Equal(t, 100.0, res.Reference)
	assert.Equal(t, 1, res.Stats.OpenPositions)

	deep, err := e.State().Level(-2)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelActive, deep.Status)
	assert.Equal(t, 1, e.OpenOrders(), "sell placed for the deep level")
	assert.Zero(t, store.cancelled())
}

func TestEngine_ShutdownBooksFillBeforeCancel(t *testing.T) {
	prices := marketPrices{symbol: 100}
	gw := &fillBeforeCancelGateway{Gateway: newGateway(prices, 0.001, 100), prices: prices, fillAt: 98.5}
	e := trader.New(gw, twoLevelState(t, 0.001), domain.NewPortfolio(100), nil, trader.Config{Strategy: "test", Symbol: symbol})
	ctx := context.Background()

	_, err := e.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Shutdown(ctx))
	assert.Zero(t, e.OpenOrders())

	shallow, err := e.State().Level(-1)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelActive, shallow.Status)
	assert.Len(t, e.Portfolio().Positions(), 1)
}

// --- fakes ---

// fillBeforeCancelGateway moves the market to fillAt and lets the paper
// gateway execute the order just before the cancel is applied.
type fillBeforeCancelGateway struct {
	*paper.Gateway
	prices marketPrices
	fillAt float64
}

func (g *fillBeforeCancelGateway) CancelOrder(ctx context.Context, s, id string) error {
	g.prices[s] = g.fillAt
	if _, err := g.Gateway.GetOrderStatus(ctx, s, id); err != nil {
		return err
	}
	return g.Gateway.CancelOrder(ctx, s, id)
}

type flakyGateway struct {
	*paper.Gateway
	failStatus bool
}

func (g *flakyGateway) GetOrderStatus(ctx context.Context, s, id string) (domain.Order, error) {
	if g.failStatus {
		return domain.Order{}, errors.New("timeout")
	}
	return g.Gateway.GetOrderStatus(ctx, s, id)
}

type fakeLedger struct {
	orders    map[string]domain.Order
	trades    []domain.StrategyTrade
	snapshots []domain.Snapshot
}

func (f *fakeLedger) ApplyLedgerSchema(context.Context) error { return nil }

func (f *fakeLedger) SaveOrder(_ context.Context, _ string, _ int, o domain.Order) error {
	if f.orders == nil {
		f.orders = make(map[string]domain.Order)
	}
	f.orders[o.ID] = o
	return nil
}

func (f *fakeLedger) UpdateOrder(_ context.Context, o domain.Order) error {
	if _, ok := f.orders[o.ID]; !ok {
		return errors.New("unknown order")
	}
	f.orders[o.ID] = o
	return nil
}

func (f *fakeLedger) SaveTrade(_ context.Context, t domain.StrategyTrade) error {
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeLedger) SaveSnapshot(_ context.Context, _ string, s domain.Snapshot) error {
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (f *fakeLedger) GetTrades(context.Context, string) ([]domain.StrategyTrade, error) {
	return f.trades, nil
}

func (f *fakeLedger) Close() error { return nil }

func (f *fakeLedger) cancelled() int {
	n := 0
	for _, o := range f.orders {
		if o.Status == domain.OrderCancelled {
			n++
		}
	}
	return n
}
