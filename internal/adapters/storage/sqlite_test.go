package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/gridbot/internal/adapters/storage"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.BacktestStorage = (*storage.SQLiteStorage)(nil)
	_ ports.LedgerStorage   = (*storage.SQLiteStorage)(nil)
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(strategy string, created time.Time) ports.BacktestRun {
	trade := domain.Trade{
		BuyTime: t0.Add(time.Hour), SellTime: t0.Add(3 * time.Hour),
		Level: -1, BuyPrice: 95, SellPrice: 99, Quantity: 10,
		Cost: 950, Revenue: 990, Profit: 40, ROI: 40.0 / 950,
	}
	return ports.BacktestRun{
		Strategy:  strategy,
		Symbol:    "BTCUSDT",
		Interval:  "1h",
		CreatedAt: created,
		Start:     t0,
		End:       t0.Add(24 * time.Hour),
		Report: domain.PerformanceReport{
			TotalTrades: 1, WinningTrades: 1, WinRate: 1,
			TotalProfit: 40, InitialCapital: 1000, FinalValue: 1040, TotalReturnPct: 4,
		},
		Trades: []domain.Trade{trade},
		Skips: []domain.Skip{{
			Timestamp: t0.Add(2 * time.Hour), Level: -3,
			Reason: domain.SkipInsufficientFunds, Required: 500, Available: 50,
		}},
		Snapshots: []domain.Snapshot{
			{Timestamp: t0, Cash: 1000, TotalValue: 1000},
			{Timestamp: t0.Add(time.Hour), Cash: 50, PositionsValue: 950, TotalValue: 1000},
			{Timestamp: t0.Add(3 * time.Hour), Cash: 1040, TotalValue: 1040},
		},
	}
}

func TestSQLiteStorage_SaveAndGetRun(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	run := sampleRun("btc_fib", t0)
	id, err := db.SaveRun(ctx, run)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := db.GetRun(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, id, got.ID)
	assert.Equal(t, "btc_fib", got.Strategy)
	assert.True(t, run.Start.Equal(got.Start))
	assert.True(t, run.End.Equal(got.End))
	assert.Equal(t, run.Report, got.Report)
	assert.Equal(t, run.Trades, got.Trades)
	assert.Equal(t, run.Skips, got.Skips)
	assert.Equal(t, run.Snapshots, got.Snapshots)
}

func TestSQLiteStorage_GetRun_NotFound(t *testing.T) {
	db := newDB(t)

	_, err := db.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLiteStorage_ListRuns(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	_, err := db.SaveRun(ctx, sampleRun("btc_fib", t0))
	require.NoError(t, err)
	_, err = db.SaveRun(ctx, sampleRun("eth_fib", t0.Add(time.Minute)))
	require.NoError(t, err)
	newest, err := db.SaveRun(ctx, sampleRun("btc_fib", t0.Add(2*time.Minute)))
	require.NoError(t, err)

	all, err := db.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, newest, all[0].ID)
	assert.Empty(t, all[0].Trades, "headers only")

	btc, err := db.ListRuns(ctx, "btc_fib", 1)
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, newest, btc[0].ID)
	assert.InDelta(t, 40.0, btc[0].Report.TotalProfit, 1e-9)
}

func TestSQLiteStorage_SaveRun_DuplicateIDRollsBack(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	run := sampleRun("btc_fib", t0)
	run.ID = "fixed"
	_, err := db.SaveRun(ctx, run)
	require.NoError(t, err)

	_, err = db.SaveRun(ctx, run)
	require.Error(t, err)

	runs, err := db.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLiteStorage_OrderLifecycle(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	o := domain.Order{
		ID: "o-1", ClientID: "btc_fib:-1:1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		Price: 49750, Quantity: 0.001,
		Status: domain.OrderNew, CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, db.SaveOrder(ctx, "btc_fib", -1, o))

	o.Status = domain.OrderFilled
	o.FilledPrice = o.Price
	o.FilledQty = o.Quantity
	o.UpdatedAt = t0.Add(time.Minute)
	assert.NoError(t, db.UpdateOrder(ctx, o))

	o.ID = "o-unknown"
	assert.ErrorIs(t, db.UpdateOrder(ctx, o), storage.ErrNotFound)
}

func TestSQLiteStorage_TradesAndSnapshots(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	mk := func(strategy string, level int, sell time.Time, profit float64) domain.StrategyTrade {
		return domain.StrategyTrade{Strategy: strategy, Trade: domain.Trade{
			BuyTime: t0, SellTime: sell, Level: level, BuyPrice: 100, SellPrice: 101,
			Quantity: 1, Cost: 100, Revenue: 100 + profit, Profit: profit, ROI: profit / 100,
		}}
	}
	require.NoError(t, db.SaveTrade(ctx, mk("btc_fib", -2, t0.Add(2*time.Hour), 2)))
	require.NoError(t, db.SaveTrade(ctx, mk("btc_fib", -1, t0.Add(time.Hour), 1)))
	require.NoError(t, db.SaveTrade(ctx, mk("eth_fib", -1, t0.Add(time.Hour), 3)))

	btc, err := db.GetTrades(ctx, "btc_fib")
	require.NoError(t, err)
	require.Len(t, btc, 2)
	assert.Equal(t, -1, btc[0].Level, "ordered by close time")
	assert.True(t, t0.Add(time.Hour).Equal(btc[0].SellTime))

	all, err := db.GetTrades(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	snap := domain.Snapshot{Timestamp: t0, Cash: 900, PositionsValue: 100, TotalValue: 1000}
	require.NoError(t, db.SaveSnapshot(ctx, "btc_fib", snap))
	snap.TotalValue = 1001
	assert.NoError(t, db.SaveSnapshot(ctx, "btc_fib", snap), "same timestamp replaces")
}
