package backtest

import (
	"log/slog"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/metrics"
)

// simulation is the mutable bookkeeping of a single run.
type simulation struct {
	strategy string
	state    *domain.LadderState
	feeRate  float64
	recycle  bool

	cash      float64
	trades    []domain.Trade
	snapshots []domain.Snapshot
	skips     []domain.Skip
}

// step processes one bar: buys against the low, then sells against the high,
// then a snapshot at the close. A level bought in this bar may also sell in
// it when the high reaches its sell price.
func (s *simulation) step(bar domain.Bar) {
	for _, ls := range s.state.PendingLevels() {
		if bar.Low > ls.BuyPrice {
			continue
		}
		cost := domain.BuyCost(ls.BuyPrice, ls.Quantity, s.feeRate)
		if cost > s.cash {
			s.skips = append(s.skips, domain.Skip{
				Timestamp: bar.Timestamp,
				Level:     ls.ID,
				Reason:    domain.SkipInsufficientFunds,
				Required:  cost,
				Available: s.cash,
			})
			metrics.Skips.WithLabelValues(s.strategy, string(domain.SkipInsufficientFunds)).Inc()
			slog.Debug("backtest: buy skipped",
				"level", ls.ID,
				"required", cost,
				"cash", s.cash,
				"at", bar.Timestamp,
			)
			continue
		}
		if s.state.TryFillBuy(ls.ID, bar.Low, bar.Timestamp) {
			s.cash -= cost
			metrics.Fills.WithLabelValues(s.strategy, string(domain.SideBuy)).Inc()
			slog.Debug("backtest: buy filled", "level", ls.ID, "price", ls.BuyPrice, "at", bar.Timestamp)
		}
	}

	for _, ls := range s.state.ActiveLevels() {
		trade, ok := s.state.TryFillSell(ls.ID, bar.High, bar.Timestamp)
		if !ok {
			continue
		}
		s.cash += trade.Revenue
		s.trades = append(s.trades, trade)
		metrics.Fills.WithLabelValues(s.strategy, string(domain.SideSell)).Inc()
		slog.Debug("backtest: sell filled",
			"level", ls.ID,
			"price", trade.SellPrice,
			"profit", trade.Profit,
			"at", bar.Timestamp,
		)
	}

	if s.recycle && s.state.AllClosed() {
		s.state.ResetClosedToPending()
	}

	s.snapshots = append(s.snapshots, s.snapshot(bar))
}

func (s *simulation) snapshot(bar domain.Bar) domain.Snapshot {
	positions := 0.0
	for _, ls := range s.state.ActiveLevels() {
		positions += ls.FilledQuantity * bar.Close
	}
	return domain.Snapshot{
		Timestamp:      bar.Timestamp,
		Cash:           s.cash,
		PositionsValue: positions,
		TotalValue:     s.cash + positions,
	}
}
