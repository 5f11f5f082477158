package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/adapters/storage"
	"github.com/alejandrodnm/gridbot/internal/domain"
)

const reportListLimit = 20

// runReport muestra un backtest guardado (-run) o lista los últimos junto
// con los trades del paper trader.
func runReport(ctx context.Context, cfg *config.Config, console *notify.Console, runID, strategies string) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	defer store.Close()

	if runID != "" {
		run, err := store.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		console.PrintBacktest(run)
		return nil
	}

	// solo se filtra por una estrategia concreta
	filter := strings.TrimSpace(strategies)
	if filter == "all" || strings.Contains(filter, ",") {
		filter = ""
	}

	runs, err := store.ListRuns(ctx, filter, reportListLimit)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	console.PrintRuns(runs)

	trades, err := store.GetTrades(ctx, filter)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if len(trades) > 0 {
		plain := make([]domain.Trade, len(trades))
		for i, t := range trades {
			plain[i] = t.Trade
		}
		fmt.Printf("\n  Paper trades (%d)\n", len(trades))
		console.PrintProfitByLevel(plain)
		console.PrintTrades(plain)
	}
	return nil
}
