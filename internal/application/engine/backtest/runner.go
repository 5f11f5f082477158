package backtest

// runner.go - worker pool that backtests several strategies in parallel.
//
// Each job owns its plan, bars and state, so workers share nothing mutable.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Job is one strategy to simulate.
type Job struct {
	Plan   domain.Plan
	Bars   []domain.Bar
	Config Config
}

// JobResult pairs a job's strategy with its outcome.
type JobResult struct {
	Strategy string
	Result   Result
	Err      error
}

// RunAll runs jobs on a worker pool and returns results in job order.
// A failing job does not stop the others.
//
// If workers <= 0 it uses runtime.NumCPU().
func RunAll(ctx context.Context, jobs []Job, workers int) []JobResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	results := make([]JobResult, len(jobs))
	workCh := make(chan int, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workCh {
				job := jobs[idx]
				res, err := RunContext(ctx, job.Plan, job.Bars, job.Config)
				if err != nil {
					slog.Warn("backtest: job failed", "strategy", job.Config.Strategy, "err", err)
				}
				results[idx] = JobResult{Strategy: job.Config.Strategy, Result: res, Err: err}
			}
		}()
	}

	for i := range jobs {
		workCh <- i
	}
	close(workCh)
	wg.Wait()

	slog.Debug("backtest: parallel run complete", "jobs", len(jobs), "workers", workers)
	return results
}
