package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// maxTradeRows limita la tabla de trades; el resto se resume en una línea.
const maxTradeRows = 50

// Console renderiza planes, backtests y el estado del trader en tablas.
type Console struct {
	out io.Writer
}

// NewConsole crea un renderer que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un renderer sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintPlan imprime la escalera valorada contra el precio de referencia.
func (c *Console) PrintPlan(name, pair string, state *domain.LadderState) {
	plan := state.Plan()
	fmt.Fprintf(c.out, "\n=== LADDER %s (%s) ref %.4f ===\n", name, pair, state.ReferencePrice())

	table := tablewriter.NewWriter(c.out)
	table.Header("Level", "Weight", "Gap", "Mult", "Units", "Buy", "Sell", "Qty", "Status")

	for _, l := range state.Levels() {
		gap := fmt.Sprintf("%.2f%%", l.Gap*100)
		if l.Clamped() {
			gap += "*"
		}
		status := string(l.Status)
		if !l.Usable {
			status = "UNUSABLE"
		}
		table.Append(
			fmt.Sprintf("%d", l.ID),
			fmt.Sprintf("%g", l.Weight),
			gap,
			fmt.Sprintf("%.4f", l.Multiplier),
			fmt.Sprintf("%.0f", l.Units),
			fmt.Sprintf("%.4f", l.BuyPrice),
			fmt.Sprintf("%.4f", l.SellPrice),
			fmt.Sprintf("%.6f", l.Quantity),
			status,
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  gap_max %.4f | fee %.4f | unit %g | %d levels\n",
		plan.GapMax, plan.FeeRate, plan.UnitSize, len(plan.Levels))
	fmt.Fprintf(c.out, "  Total swing: %.2f%% | Capital required: %.2f\n",
		plan.TotalSwing()*100, state.RequiredCapital())
	fmt.Fprintln(c.out, "  * gap recortado a gap_max")
}

// PrintBacktest imprime el informe completo de un backtest.
func (c *Console) PrintBacktest(run ports.BacktestRun) {
	r := run.Report
	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  BACKTEST %s (%s %s)\n", run.Strategy, run.Symbol, run.Interval)
	fmt.Fprintf(c.out, "  %s to %s\n", run.Start.Format(time.DateOnly), run.End.Format(time.DateOnly))
	fmt.Fprintf(c.out, "========================================================\n")

	c.printSummary(r)

	if r.NoTrades {
		fmt.Fprintln(c.out, "\n  No trades executed.")
	} else {
		c.PrintProfitByLevel(run.Trades)
		c.PrintTrades(run.Trades)
	}

	if len(run.Skips) > 0 {
		fmt.Fprintf(c.out, "\n  %d buys skipped (insufficient funds), first at %s level %d\n",
			len(run.Skips), run.Skips[0].Timestamp.Format(time.DateTime), run.Skips[0].Level)
	}
	fmt.Fprintln(c.out)
}

func (c *Console) printSummary(r domain.PerformanceReport) {
	fmt.Fprintf(c.out, "  Initial capital: %12.2f\n", r.InitialCapital)
	fmt.Fprintf(c.out, "  Final value:     %12.2f  (%+.2f%%)\n", r.FinalValue, r.TotalReturnPct)
	fmt.Fprintf(c.out, "  Max drawdown:    %12.2f%%\n", r.MaxDrawdownPct)
	fmt.Fprintf(c.out, "  Sharpe ratio:    %12.2f\n", r.SharpeRatio)
	fmt.Fprintf(c.out, "  Trades:          %12d  (win %d / loss %d, win rate %.1f%%)\n",
		r.TotalTrades, r.WinningTrades, r.LosingTrades, r.WinRate*100)
	if !r.NoTrades {
		fmt.Fprintf(c.out, "  Profit:          %12.4f  (avg %.4f, max %.4f, min %.4f)\n",
			r.TotalProfit, r.AvgProfit, r.MaxProfit, r.MinProfit)
	}
}

// PrintTrades imprime el historial de trades, hasta maxTradeRows filas.
func (c *Console) PrintTrades(trades []domain.Trade) {
	if len(trades) == 0 {
		return
	}
	fmt.Fprintln(c.out, "\n  Trade history")

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Level", "Buy time", "Sell time", "Buy", "Sell", "Qty", "Profit", "ROI")

	shown := trades
	if len(shown) > maxTradeRows {
		shown = shown[:maxTradeRows]
	}
	for i, t := range shown {
		table.Append(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%d", t.Level),
			t.BuyTime.Format("2006-01-02 15:04"),
			t.SellTime.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.4f", t.BuyPrice),
			fmt.Sprintf("%.4f", t.SellPrice),
			fmt.Sprintf("%.6f", t.Quantity),
			fmt.Sprintf("%.4f", t.Profit),
			fmt.Sprintf("%.2f%%", t.ROI*100),
		)
	}
	table.Render()

	if rest := len(trades) - len(shown); rest > 0 {
		fmt.Fprintf(c.out, "  ... %d more trades\n", rest)
	}
}

// PrintProfitByLevel imprime el beneficio agregado por nivel.
func (c *Console) PrintProfitByLevel(trades []domain.Trade) {
	levels := domain.ProfitByLevel(trades)
	if len(levels) == 0 {
		return
	}
	fmt.Fprintln(c.out, "\n  Profit by level")

	table := tablewriter.NewWriter(c.out)
	table.Header("Level", "Trades", "Total", "Avg", "Avg buy", "Avg sell")
	for _, lp := range levels {
		table.Append(
			fmt.Sprintf("%d", lp.Level),
			fmt.Sprintf("%d", lp.Trades),
			fmt.Sprintf("%.4f", lp.TotalProfit),
			fmt.Sprintf("%.4f", lp.AvgProfit),
			fmt.Sprintf("%.4f", lp.AvgBuyPrice),
			fmt.Sprintf("%.4f", lp.AvgSellPrice),
		)
	}
	table.Render()
}

// PrintComparison imprime una fila por estrategia, para runs en paralelo.
func (c *Console) PrintComparison(runs []ports.BacktestRun) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "\n  No backtest results available.")
		return
	}
	fmt.Fprintln(c.out, "\n=== STRATEGY COMPARISON ===")

	table := tablewriter.NewWriter(c.out)
	table.Header("Strategy", "Pair", "Trades", "Win%", "Profit", "Return", "MaxDD", "Sharpe")
	for _, run := range runs {
		r := run.Report
		table.Append(
			run.Strategy,
			run.Symbol,
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%.1f", r.WinRate*100),
			fmt.Sprintf("%.2f", r.TotalProfit),
			fmt.Sprintf("%+.2f%%", r.TotalReturnPct),
			fmt.Sprintf("%.2f%%", r.MaxDrawdownPct),
			fmt.Sprintf("%.2f", r.SharpeRatio),
		)
	}
	table.Render()
}

// PrintRuns lista backtests guardados (solo cabeceras).
func (c *Console) PrintRuns(runs []ports.BacktestRun) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "\n  No saved backtests. Run -backtest first.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Created", "Strategy", "Pair", "Period", "Trades", "Profit", "Return")
	for _, run := range runs {
		r := run.Report
		table.Append(
			run.ID,
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			run.Strategy,
			run.Symbol,
			fmt.Sprintf("%s..%s", run.Start.Format("01-02"), run.End.Format("01-02")),
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%.2f", r.TotalProfit),
			fmt.Sprintf("%+.2f%%", r.TotalReturnPct),
		)
	}
	table.Render()
}
