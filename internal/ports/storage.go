package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// BacktestRun is one persisted backtest of a strategy.
type BacktestRun struct {
	ID        string
	Strategy  string
	Symbol    string
	Interval  string
	CreatedAt time.Time
	Start     time.Time
	End       time.Time
	Report    domain.PerformanceReport
	Trades    []domain.Trade
	Skips     []domain.Skip
	Snapshots []domain.Snapshot
}

// BacktestStorage persists backtest results for later reporting.
type BacktestStorage interface {
	ApplyBacktestSchema(ctx context.Context) error
	SaveRun(ctx context.Context, run BacktestRun) (string, error)
	GetRun(ctx context.Context, id string) (BacktestRun, error)
	// ListRuns returns run headers, newest first, without trades or snapshots.
	ListRuns(ctx context.Context, strategy string, limit int) ([]BacktestRun, error)
	Close() error
}

// LedgerStorage persists the trader's orders, completed trades and snapshots.
type LedgerStorage interface {
	ApplyLedgerSchema(ctx context.Context) error
	SaveOrder(ctx context.Context, strategy string, level int, order domain.Order) error
	UpdateOrder(ctx context.Context, order domain.Order) error
	SaveTrade(ctx context.Context, trade domain.StrategyTrade) error
	SaveSnapshot(ctx context.Context, strategy string, snap domain.Snapshot) error
	GetTrades(ctx context.Context, strategy string) ([]domain.StrategyTrade, error)
	Close() error
}
