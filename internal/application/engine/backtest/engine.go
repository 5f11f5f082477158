// Package backtest replays historical bars through a ladder and accounts
// cash, fills and portfolio value bar by bar.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/metrics"
)

// DefaultInitialCapital is the quote balance a run starts with when none is set.
const DefaultInitialCapital = 10000

// cancelCheckEvery is how many bars RunContext processes between ctx checks.
const cancelCheckEvery = 1024

// Config holds the per-run simulation parameters.
type Config struct {
	Strategy       string  // label for logs and metrics
	InitialCapital float64 // quote currency; 0 means DefaultInitialCapital
	// ReferencePrice prices the ladder once at start. 0 seeds it from the
	// first bar's close.
	ReferencePrice float64
	// Recycle resets closed levels to pending once every level has closed,
	// without re-pricing. Off by default: each level trades at most once.
	Recycle bool
}

// Result is the full output of one run.
type Result struct {
	Strategy       string
	ReferencePrice float64
	InitialCapital float64
	FinalCash      float64
	Start          time.Time
	End            time.Time
	Trades         []domain.Trade
	Snapshots      []domain.Snapshot
	Skips          []domain.Skip
	OpenPositions  []domain.LevelState // still active after the last bar
	Unusable       []int               // levels with non-positive derived prices
	Cycles         int
	Bars           int
}

// Report summarizes the run. Drawdown uses every bar's snapshot; Sharpe is
// computed on daily closes whatever the bar interval.
func (r Result) Report() domain.PerformanceReport {
	rep := domain.Summarize(r.Trades, r.Snapshots, r.InitialCapital)
	rep.SharpeRatio = domain.SharpeRatio(domain.ResampleDaily(r.Snapshots))
	return rep
}

// Run simulates plan over bars. bars must be sorted strictly ascending by
// timestamp; the engine validates but never sorts.
func Run(plan domain.Plan, bars []domain.Bar, cfg Config) (Result, error) {
	return RunContext(context.Background(), plan, bars, cfg)
}

// RunContext is Run with cancellation checked between chunks of bars.
func RunContext(ctx context.Context, plan domain.Plan, bars []domain.Bar, cfg Config) (Result, error) {
	if err := validateBars(bars); err != nil {
		return Result{}, err
	}
	if cfg.InitialCapital == 0 {
		cfg.InitialCapital = DefaultInitialCapital
	}

	ref := cfg.ReferencePrice
	if ref <= 0 {
		ref = bars[0].Close
	}

	state := domain.NewLadderState(plan)
	unusable, err := state.SetReferencePrice(ref)
	if err != nil {
		return Result{}, fmt.Errorf("backtest.Run: seed reference price: %w", err)
	}

	sim := &simulation{
		strategy: cfg.Strategy,
		state:    state,
		feeRate:  plan.FeeRate,
		cash:     cfg.InitialCapital,
		recycle:  cfg.Recycle,
	}
	sim.snapshots = make([]domain.Snapshot, 0, len(bars))

	slog.Info("backtest: starting",
		"strategy", cfg.Strategy,
		"bars", len(bars),
		"from", bars[0].Timestamp,
		"to", bars[len(bars)-1].Timestamp,
		"reference", ref,
		"capital", cfg.InitialCapital,
	)

	for i, bar := range bars {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, fmt.Errorf("backtest.Run: %w", err)
			}
		}
		sim.step(bar)
	}
	metrics.BacktestBars.Add(float64(len(bars)))
	metrics.BacktestRuns.WithLabelValues(cfg.Strategy).Inc()

	res := Result{
		Strategy:       cfg.Strategy,
		ReferencePrice: ref,
		InitialCapital: cfg.InitialCapital,
		FinalCash:      sim.cash,
		Start:          bars[0].Timestamp,
		End:            bars[len(bars)-1].Timestamp,
		Trades:         sim.trades,
		Snapshots:      sim.snapshots,
		Skips:          sim.skips,
		OpenPositions:  state.ActiveLevels(),
		Unusable:       unusable,
		Cycles:         state.Cycles(),
		Bars:           len(bars),
	}

	slog.Info("backtest: finished",
		"strategy", cfg.Strategy,
		"trades", len(res.Trades),
		"skips", len(res.Skips),
		"open", len(res.OpenPositions),
		"final_cash", fmt.Sprintf("%.2f", res.FinalCash),
	)
	return res, nil
}

// validateBars rejects the whole sequence before any bar is processed, so a
// failed run never yields a partial trade log.
func validateBars(bars []domain.Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("backtest.Run: %w", domain.ErrEmptyData)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("backtest.Run: bar %d at %s not after %s: %w",
				i, bars[i].Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339), domain.ErrOrdering)
		}
	}
	return nil
}
