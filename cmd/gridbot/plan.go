package main

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/binance"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/strategy"
)

// runPlan imprime cada escalera valorada al precio actual o a reference.
func runPlan(ctx context.Context, cfg *config.Config, selected []*strategy.Strategy, console *notify.Console, reference float64) error {
	client := binance.NewClient(cfg.API.BaseURL)

	for _, s := range selected {
		ref := reference
		if ref <= 0 {
			price, err := client.GetPrice(ctx, s.Pair)
			if err != nil {
				return fmt.Errorf("plan %s: %w", s.Name, err)
			}
			ref = price
		}

		state := s.NewState()
		if _, err := state.SetReferencePrice(ref); err != nil {
			return fmt.Errorf("plan %s: %w", s.Name, err)
		}
		console.PrintPlan(s.Name, s.Pair, state)
	}
	return nil
}
