package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
	"github.com/google/uuid"
)

const backtestSchema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
    id               TEXT PRIMARY KEY,
    strategy         TEXT    NOT NULL,
    symbol           TEXT    NOT NULL,
    interval         TEXT    NOT NULL,
    created_at       DATETIME NOT NULL,
    start_ms         INTEGER NOT NULL,
    end_ms           INTEGER NOT NULL,
    total_trades     INTEGER NOT NULL DEFAULT 0,
    total_profit     REAL    NOT NULL DEFAULT 0,
    total_return_pct REAL    NOT NULL DEFAULT 0,
    report_json      TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_trades (
    run_id     TEXT    NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
    seq        INTEGER NOT NULL,
    level      INTEGER NOT NULL,
    buy_ms     INTEGER NOT NULL,
    sell_ms    INTEGER NOT NULL,
    buy_price  REAL    NOT NULL,
    sell_price REAL    NOT NULL,
    quantity   REAL    NOT NULL,
    cost       REAL    NOT NULL,
    revenue    REAL    NOT NULL,
    profit     REAL    NOT NULL,
    roi        REAL    NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS backtest_skips (
    run_id    TEXT    NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
    seq       INTEGER NOT NULL,
    ts_ms     INTEGER NOT NULL,
    level     INTEGER NOT NULL,
    reason    TEXT    NOT NULL,
    required  REAL    NOT NULL,
    available REAL    NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS backtest_snapshots (
    run_id          TEXT    NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
    ts_ms           INTEGER NOT NULL,
    cash            REAL    NOT NULL,
    positions_value REAL    NOT NULL,
    total_value     REAL    NOT NULL,
    PRIMARY KEY (run_id, ts_ms)
);

CREATE INDEX IF NOT EXISTS idx_runs_strategy ON backtest_runs(strategy, created_at DESC);
`

// ApplyBacktestSchema creates backtest tables if they don't exist.
func (s *SQLiteStorage) ApplyBacktestSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, backtestSchema); err != nil {
		return fmt.Errorf("storage.ApplyBacktestSchema: %w", err)
	}
	return nil
}

// SaveRun persiste un backtest completo en una transacción y devuelve su id.
// Si run.ID está vacío se genera un UUID.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run ports.BacktestRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	report, err := json.Marshal(run.Report)
	if err != nil {
		return "", fmt.Errorf("storage.SaveRun: marshal report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, strategy, symbol, interval, created_at, start_ms, end_ms,
			 total_trades, total_profit, total_return_pct, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Symbol, run.Interval, run.CreatedAt.UTC(),
		toMillis(run.Start), toMillis(run.End),
		run.Report.TotalTrades, run.Report.TotalProfit, run.Report.TotalReturnPct, string(report),
	); err != nil {
		return "", fmt.Errorf("storage.SaveRun: insert run: %w", err)
	}

	if err := insertBacktestTrades(ctx, tx, run.ID, run.Trades); err != nil {
		return "", err
	}
	if err := insertBacktestSkips(ctx, tx, run.ID, run.Skips); err != nil {
		return "", err
	}
	if err := insertBacktestSnapshots(ctx, tx, run.ID, run.Snapshots); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return run.ID, nil
}

func insertBacktestTrades(ctx context.Context, tx *sql.Tx, runID string, trades []domain.Trade) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades
			(run_id, seq, level, buy_ms, sell_ms, buy_price, sell_price, quantity, cost, revenue, profit, roi)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare trades: %w", err)
	}
	defer stmt.Close()

	for i, t := range trades {
		if _, err := stmt.ExecContext(ctx, runID, i, t.Level, toMillis(t.BuyTime), toMillis(t.SellTime),
			t.BuyPrice, t.SellPrice, t.Quantity, t.Cost, t.Revenue, t.Profit, t.ROI,
		); err != nil {
			return fmt.Errorf("storage.SaveRun: insert trade %d: %w", i, err)
		}
	}
	return nil
}

func insertBacktestSkips(ctx context.Context, tx *sql.Tx, runID string, skips []domain.Skip) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_skips (run_id, seq, ts_ms, level, reason, required, available)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare skips: %w", err)
	}
	defer stmt.Close()

	for i, sk := range skips {
		if _, err := stmt.ExecContext(ctx, runID, i, toMillis(sk.Timestamp), sk.Level, string(sk.Reason), sk.Required, sk.Available); err != nil {
			return fmt.Errorf("storage.SaveRun: insert skip %d: %w", i, err)
		}
	}
	return nil
}

func insertBacktestSnapshots(ctx context.Context, tx *sql.Tx, runID string, snaps []domain.Snapshot) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_snapshots (run_id, ts_ms, cash, positions_value, total_value)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare snapshots: %w", err)
	}
	defer stmt.Close()

	for _, sn := range snaps {
		if _, err := stmt.ExecContext(ctx, runID, toMillis(sn.Timestamp), sn.Cash, sn.PositionsValue, sn.TotalValue); err != nil {
			return fmt.Errorf("storage.SaveRun: insert snapshot: %w", err)
		}
	}
	return nil
}

// GetRun carga un backtest con sus trades, skips y snapshots.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (ports.BacktestRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbol, interval, created_at, start_ms, end_ms, report_json
		FROM backtest_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.BacktestRun{}, fmt.Errorf("storage.GetRun %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ports.BacktestRun{}, fmt.Errorf("storage.GetRun: %w", err)
	}

	if run.Trades, err = s.runTrades(ctx, id); err != nil {
		return ports.BacktestRun{}, err
	}
	if run.Skips, err = s.runSkips(ctx, id); err != nil {
		return ports.BacktestRun{}, err
	}
	if run.Snapshots, err = s.runSnapshots(ctx, id); err != nil {
		return ports.BacktestRun{}, err
	}
	return run, nil
}

// ListRuns devuelve las cabeceras de los últimos runs, más recientes primero.
// strategy vacío no filtra; limit <= 0 usa 20.
func (s *SQLiteStorage) ListRuns(ctx context.Context, strategy string, limit int) ([]ports.BacktestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, interval, created_at, start_ms, end_ms, report_json
		FROM backtest_runs
		WHERE ? = '' OR strategy = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, strategy, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRuns: %w", err)
	}
	defer rows.Close()

	var out []ports.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListRuns: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (ports.BacktestRun, error) {
	var (
		run            ports.BacktestRun
		startMs, endMs int64
		report         string
	)
	if err := sc.Scan(&run.ID, &run.Strategy, &run.Symbol, &run.Interval, &run.CreatedAt, &startMs, &endMs, &report); err != nil {
		return ports.BacktestRun{}, err
	}
	run.Start = fromMillis(startMs)
	run.End = fromMillis(endMs)
	if err := json.Unmarshal([]byte(report), &run.Report); err != nil {
		return ports.BacktestRun{}, fmt.Errorf("decode report: %w", err)
	}
	return run, nil
}

func (s *SQLiteStorage) runTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, buy_ms, sell_ms, buy_price, sell_price, quantity, cost, revenue, profit, roi
		FROM backtest_trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRun: trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.GetRun: scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(sc scanner) (domain.Trade, error) {
	var (
		t             domain.Trade
		buyMs, sellMs int64
	)
	if err := sc.Scan(&t.Level, &buyMs, &sellMs, &t.BuyPrice, &t.SellPrice, &t.Quantity, &t.Cost, &t.Revenue, &t.Profit, &t.ROI); err != nil {
		return domain.Trade{}, err
	}
	t.BuyTime = fromMillis(buyMs)
	t.SellTime = fromMillis(sellMs)
	return t, nil
}

func (s *SQLiteStorage) runSkips(ctx context.Context, runID string) ([]domain.Skip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts_ms, level, reason, required, available
		FROM backtest_skips WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRun: skips: %w", err)
	}
	defer rows.Close()

	var out []domain.Skip
	for rows.Next() {
		var (
			sk     domain.Skip
			ms     int64
			reason string
		)
		if err := rows.Scan(&ms, &sk.Level, &reason, &sk.Required, &sk.Available); err != nil {
			return nil, fmt.Errorf("storage.GetRun: scan skip: %w", err)
		}
		sk.Timestamp = fromMillis(ms)
		sk.Reason = domain.SkipReason(reason)
		out = append(out, sk)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) runSnapshots(ctx context.Context, runID string) ([]domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts_ms, cash, positions_value, total_value
		FROM backtest_snapshots WHERE run_id = ? ORDER BY ts_ms`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRun: snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		var (
			sn domain.Snapshot
			ms int64
		)
		if err := rows.Scan(&ms, &sn.Cash, &sn.PositionsValue, &sn.TotalValue); err != nil {
			return nil, fmt.Errorf("storage.GetRun: scan snapshot: %w", err)
		}
		sn.Timestamp = fromMillis(ms)
		out = append(out, sn)
	}
	return out, rows.Err()
}
