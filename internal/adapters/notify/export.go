package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

// Period is the simulated time range of an exported report.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// JSONReport is the on-disk shape of an exported backtest.
type JSONReport struct {
	ID        string                   `json:"id,omitempty"`
	Strategy  string                   `json:"strategy"`
	Symbol    string                   `json:"symbol"`
	Interval  string                   `json:"interval"`
	Period    Period                   `json:"period"`
	Report    domain.PerformanceReport `json:"report"`
	Levels    []domain.LevelProfit     `json:"profit_by_level"`
	Trades    []domain.Trade           `json:"trades"`
	Snapshots []domain.Snapshot        `json:"snapshots"`
}

// NewJSONReport converts a run into its export shape. Nil slices become
// empty arrays so consumers never see null.
func NewJSONReport(run ports.BacktestRun) JSONReport {
	r := JSONReport{
		ID:        run.ID,
		Strategy:  run.Strategy,
		Symbol:    run.Symbol,
		Interval:  run.Interval,
		Period:    Period{Start: run.Start, End: run.End},
		Report:    run.Report,
		Levels:    domain.ProfitByLevel(run.Trades),
		Trades:    run.Trades,
		Snapshots: run.Snapshots,
	}
	if r.Trades == nil {
		r.Trades = []domain.Trade{}
	}
	if r.Snapshots == nil {
		r.Snapshots = []domain.Snapshot{}
	}
	return r
}

// ExportJSON writes the indented report to w.
func ExportJSON(w io.Writer, run ports.BacktestRun) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewJSONReport(run)); err != nil {
		return fmt.Errorf("notify.ExportJSON: %w", err)
	}
	return nil
}

// WriteJSONReport guarda el informe en dir como
// backtest_<strategy>_<start>_<end>.json y devuelve la ruta.
func WriteJSONReport(dir string, run ports.BacktestRun) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("notify.WriteJSONReport: %w", err)
	}
	name := fmt.Sprintf("backtest_%s_%s_%s.json",
		strings.ReplaceAll(run.Strategy, string(filepath.Separator), "_"),
		run.Start.Format("20060102"), run.End.Format("20060102"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("notify.WriteJSONReport: %w", err)
	}
	if err := ExportJSON(f, run); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("notify.WriteJSONReport: %w", err)
	}
	return path, nil
}
