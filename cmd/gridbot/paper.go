package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/binance"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/adapters/paper"
	"github.com/alejandrodnm/gridbot/internal/adapters/storage"
	"github.com/alejandrodnm/gridbot/internal/application/engine/trader"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
	"github.com/alejandrodnm/gridbot/internal/strategy"
	"github.com/shopspring/decimal"
)

const (
	stopFile        = "STOP"
	shutdownTimeout = 10 * time.Second
)

// runPaper opera cada estrategia contra precios reales con un exchange
// simulado propio, cada uno con paper.initial_capital en el activo quote.
func runPaper(ctx context.Context, cfg *config.Config, selected []*strategy.Strategy, console *notify.Console, once bool) error {
	slog.Info("=== PAPER TRADING MODE ===",
		"strategies", len(selected),
		"capital_per_strategy", cfg.Paper.InitialCapital,
		"interval", cfg.PollInterval(),
	)

	client := binance.NewClient(cfg.API.BaseURL)

	var ledger ports.LedgerStorage
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Warn("storage unavailable, ledger will not be persisted", "err", err, "dsn", cfg.Storage.DSN)
	} else {
		defer store.Close()
		ledger = store
	}

	engines := make([]*trader.Engine, 0, len(selected))
	for _, s := range selected {
		e, err := newPaperEngine(ctx, cfg, client, ledger, s)
		if err != nil {
			shutdownAll(engines)
			return err
		}
		res, err := e.Start(ctx)
		if err != nil {
			shutdownAll(engines)
			return err
		}
		console.PrintPlan(s.Name, s.Pair, e.State())
		console.PrintTraderStatus(toStatus(res))
		engines = append(engines, e)
	}

	if once {
		runCycle(ctx, engines, console)
		return finishPaper(engines, console)
	}

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	slog.Info("paper trading started, press Ctrl+C or create STOP file to exit")
	for {
		select {
		case <-ctx.Done():
			slog.Info("paper trading stopped (signal)")
			return finishPaper(engines, console)
		case <-ticker.C:
			if _, err := os.Stat(stopFile); err == nil {
				slog.Info("STOP file detected, shutting down paper trading")
				os.Remove(stopFile)
				return finishPaper(engines, console)
			}
			runCycle(ctx, engines, console)
		}
	}
}

func newPaperEngine(ctx context.Context, cfg *config.Config, client *binance.Client, ledger ports.LedgerStorage, s *strategy.Strategy) (*trader.Engine, error) {
	quote := cfg.Paper.QuoteAsset
	filters, err := paperFilters(ctx, cfg.Paper, client, s.Pair)
	if err != nil {
		return nil, fmt.Errorf("paper %s: %w", s.Name, err)
	}

	gw := paper.NewGateway(client, s.Plan.FeeRate)
	gw.AddSymbol(paper.Market{
		Symbol:  s.Pair,
		Base:    s.BaseAsset(quote),
		Quote:   quote,
		Filters: filters,
	})
	gw.Deposit(quote, cfg.Paper.InitialCapital)

	return trader.New(gw, s.NewState(), domain.NewPortfolio(cfg.Paper.InitialCapital), ledger, trader.Config{
		Strategy:    s.Name,
		Symbol:      s.Pair,
		MaxLosses:   cfg.Paper.MaxLosses,
		Cooldown:    time.Duration(cfg.Paper.CooldownMinutes) * time.Minute,
		MaxDrawdown: cfg.Paper.MaxDrawdown,
	}), nil
}

// paperFilters usa los filtros del YAML si hay tick_size; si no, exchangeInfo.
func paperFilters(ctx context.Context, pc config.PaperConfig, filters ports.FiltersProvider, pair string) (domain.SymbolFilters, error) {
	if pc.TickSize == "" {
		return filters.GetSymbolFilters(ctx, pair)
	}
	out := domain.SymbolFilters{Symbol: pair}
	var err error
	if out.TickSize, err = decimal.NewFromString(pc.TickSize); err != nil {
		return out, fmt.Errorf("paper.tick_size: %w", err)
	}
	if pc.StepSize != "" {
		if out.StepSize, err = decimal.NewFromString(pc.StepSize); err != nil {
			return out, fmt.Errorf("paper.step_size: %w", err)
		}
	}
	if pc.MinNotional != "" {
		if out.MinNotional, err = decimal.NewFromString(pc.MinNotional); err != nil {
			return out, fmt.Errorf("paper.min_notional: %w", err)
		}
	}
	return out, nil
}

func runCycle(ctx context.Context, engines []*trader.Engine, console *notify.Console) {
	for _, e := range engines {
		res, err := e.RunOnce(ctx)
		if err != nil {
			slog.Error("paper cycle failed", "err", err)
			continue
		}
		console.PrintTraderStatus(toStatus(res))
	}
}

// finishPaper cancela las órdenes abiertas con un contexto nuevo, ya que el
// del loop puede estar cancelado, e imprime el resumen de cada cartera.
func finishPaper(engines []*trader.Engine, console *notify.Console) error {
	err := shutdownAll(engines)
	for _, e := range engines {
		p := e.Portfolio()
		console.PrintPortfolio(p.Statistics(e.LastPrices()), p.Positions())
	}
	return err
}

func shutdownAll(engines []*trader.Engine) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for _, e := range engines {
		if err := e.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func toStatus(r *trader.CycleResult) notify.TraderStatus {
	return notify.TraderStatus{
		Strategy:    r.Strategy,
		Price:       r.Price,
		Reference:   r.Reference,
		OpenOrders:  r.OpenOrders,
		BuysFilled:  r.BuysFilled,
		SellsFilled: r.SellsFilled,
		Placed:      r.Placed,
		Resets:      r.Resets,
		Stats:       r.Stats,
		BreakerOpen: r.BreakerOpen,
		BreakerNote: r.BreakerNote,
		Errors:      r.Errors,
	}
}
