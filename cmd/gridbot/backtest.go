package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/binance"
	"github.com/alejandrodnm/gridbot/internal/adapters/csvdata"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/adapters/storage"
	"github.com/alejandrodnm/gridbot/internal/application/engine/backtest"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
	"github.com/alejandrodnm/gridbot/internal/strategy"
	"golang.org/x/sync/errgroup"
)

// maxParallelFetches limita las descargas simultáneas de velas.
const maxParallelFetches = 4

type backtestOptions struct {
	reference float64
	export    bool
}

func runBacktest(ctx context.Context, cfg *config.Config, selected []*strategy.Strategy, console *notify.Console, opts backtestOptions) error {
	start, end, err := cfg.BacktestRange(time.Now())
	if err != nil {
		return err
	}
	interval := cfg.Backtest.Interval

	slog.Info("=== BACKTEST MODE ===",
		"strategies", len(selected),
		"interval", interval,
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
		"capital", cfg.Backtest.InitialCapital,
	)

	source := csvdata.NewCachedSource(csvdata.NewStore(cfg.Backtest.DataDir), binance.NewClient(cfg.API.BaseURL))
	bars, err := fetchAll(ctx, source, selected, interval, start, end)
	if err != nil {
		return err
	}

	jobs := make([]backtest.Job, len(selected))
	for i, s := range selected {
		jobs[i] = backtest.Job{
			Plan: s.Plan,
			Bars: bars[s.Pair],
			Config: backtest.Config{
				Strategy:       s.Name,
				InitialCapital: cfg.Backtest.InitialCapital,
				ReferencePrice: opts.reference,
				Recycle:        cfg.Backtest.Recycle,
			},
		}
	}
	results := backtest.RunAll(ctx, jobs, cfg.Backtest.Workers)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Warn("storage unavailable, results will not be saved", "err", err, "dsn", cfg.Storage.DSN)
	} else {
		defer store.Close()
	}

	var (
		runs   []ports.BacktestRun
		failed int
	)
	for i, jr := range results {
		s := selected[i]
		if jr.Err != nil {
			slog.Error("backtest failed", "strategy", s.Name, "err", jr.Err)
			failed++
			continue
		}
		run := toRun(s, interval, jr.Result)
		console.PrintBacktest(run)
		if open := len(jr.Result.OpenPositions); open > 0 {
			slog.Info("positions still open at end of data", "strategy", s.Name, "levels", open)
		}

		if store != nil {
			id, err := store.SaveRun(ctx, run)
			if err != nil {
				slog.Warn("failed to save backtest", "strategy", s.Name, "err", err)
			} else {
				run.ID = id
				slog.Info("backtest saved", "strategy", s.Name, "id", id)
			}
		}
		if opts.export {
			path, err := notify.WriteJSONReport(cfg.Backtest.ReportDir, run)
			if err != nil {
				slog.Warn("failed to export report", "strategy", s.Name, "err", err)
			} else {
				slog.Info("report exported", "strategy", s.Name, "path", path)
			}
		}
		runs = append(runs, run)
	}

	if len(runs) > 1 {
		console.PrintComparison(runs)
	}
	if failed > 0 {
		return fmt.Errorf("backtest: %d of %d strategies failed", failed, len(results))
	}
	return nil
}

// fetchAll descarga las velas de cada par una sola vez, en paralelo.
func fetchAll(ctx context.Context, source ports.HistoricalDataSource, selected []*strategy.Strategy, interval string, start, end time.Time) (map[string][]domain.Bar, error) {
	pairs := make(map[string]bool)
	for _, s := range selected {
		pairs[s.Pair] = true
	}

	var mu sync.Mutex
	out := make(map[string][]domain.Bar, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for pair := range pairs {
		g.Go(func() error {
			bars, err := source.FetchBars(gctx, pair, interval, start, end)
			if err != nil {
				return fmt.Errorf("fetch %s %s: %w", pair, interval, err)
			}
			slog.Info("bars loaded", "pair", pair, "count", len(bars))
			mu.Lock()
			out[pair] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	return out, nil
}

func toRun(s *strategy.Strategy, interval string, r backtest.Result) ports.BacktestRun {
	return ports.BacktestRun{
		Strategy:  s.Name,
		Symbol:    s.Pair,
		Interval:  interval,
		CreatedAt: time.Now().UTC(),
		Start:     r.Start,
		End:       r.End,
		Report:    r.Report(),
		Trades:    r.Trades,
		Skips:     r.Skips,
		Snapshots: r.Snapshots,
	}
}
