package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// TraderStatus agrupa lo que PrintTraderStatus necesita de un ciclo.
type TraderStatus struct {
	Strategy    string
	Price       float64
	Reference   float64
	OpenOrders  int
	BuysFilled  int
	SellsFilled int
	Placed      int
	Resets      int
	Stats       domain.PortfolioStats
	BreakerOpen bool
	BreakerNote string
	Errors      []string
}

// PrintTraderStatus imprime una línea compacta por ciclo del trader.
func (c *Console) PrintTraderStatus(s TraderStatus) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][%s] px %.4f ref %.4f | %d open | +%d buys +%d sells +%d orders | pnl %.4f (%+.2f%%) | val %.2f",
		now, s.Strategy, s.Price, s.Reference, s.OpenOrders, s.BuysFilled, s.SellsFilled, s.Placed,
		s.Stats.RealizedPnL, s.Stats.ROIPct, s.Stats.TotalValue)
	if s.Resets > 0 {
		fmt.Fprintf(&sb, " | ladder reset x%d", s.Resets)
	}
	if !s.BreakerOpen {
		fmt.Fprintf(&sb, "\n  !! breaker: %s", s.BreakerNote)
	}
	for i, e := range s.Errors {
		if i >= 2 {
			break
		}
		fmt.Fprintf(&sb, "\n  >> %s", e)
	}
	fmt.Fprintln(c.out, sb.String())
}

// PrintPortfolio imprime el resumen del ledger y sus posiciones abiertas.
func (c *Console) PrintPortfolio(stats domain.PortfolioStats, positions []domain.Position) {
	fmt.Fprintf(c.out, "\n=== PORTFOLIO ===\n")
	fmt.Fprintf(c.out, "  Initial capital: %12.2f\n", stats.InitialCapital)
	fmt.Fprintf(c.out, "  Cash:            %12.2f\n", stats.Cash)
	fmt.Fprintf(c.out, "  Allocated:       %12.2f  (%d positions)\n", stats.CapitalAllocated, stats.OpenPositions)
	fmt.Fprintf(c.out, "  Total value:     %12.2f\n", stats.TotalValue)
	fmt.Fprintf(c.out, "  Realized PnL:    %12.4f\n", stats.RealizedPnL)
	fmt.Fprintf(c.out, "  Unrealized PnL:  %12.4f\n", stats.UnrealizedPnL)
	fmt.Fprintf(c.out, "  Total PnL:       %12.4f  (%+.2f%%, %d trades)\n", stats.TotalPnL, stats.ROIPct, stats.Trades)

	if len(positions) == 0 {
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Strategy", "Level", "Symbol", "Buy", "Qty", "Cost", "Opened")
	for _, p := range positions {
		table.Append(
			p.Strategy,
			fmt.Sprintf("%d", p.Level),
			p.Symbol,
			fmt.Sprintf("%.4f", p.BuyPrice),
			fmt.Sprintf("%.6f", p.Quantity),
			fmt.Sprintf("%.2f", p.Cost),
			p.OpenedAt.Format("2006-01-02 15:04"),
		)
	}
	table.Render()
}
