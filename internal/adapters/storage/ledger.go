package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS trader_orders (
    id           TEXT PRIMARY KEY,
    client_id    TEXT    NOT NULL,
    strategy     TEXT    NOT NULL,
    level        INTEGER NOT NULL,
    symbol       TEXT    NOT NULL,
    side         TEXT    NOT NULL,
    price        REAL    NOT NULL,
    quantity     REAL    NOT NULL,
    status       TEXT    NOT NULL,
    filled_price REAL    NOT NULL DEFAULT 0,
    filled_qty   REAL    NOT NULL DEFAULT 0,
    fee          REAL    NOT NULL DEFAULT 0,
    created_ms   INTEGER NOT NULL,
    updated_ms   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trader_trades (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy   TEXT    NOT NULL,
    level      INTEGER NOT NULL,
    buy_ms     INTEGER NOT NULL,
    sell_ms    INTEGER NOT NULL,
    buy_price  REAL    NOT NULL,
    sell_price REAL    NOT NULL,
    quantity   REAL    NOT NULL,
    cost       REAL    NOT NULL,
    revenue    REAL    NOT NULL,
    profit     REAL    NOT NULL,
    roi        REAL    NOT NULL
);

CREATE TABLE IF NOT EXISTS trader_snapshots (
    strategy        TEXT    NOT NULL,
    ts_ms           INTEGER NOT NULL,
    cash            REAL    NOT NULL,
    positions_value REAL    NOT NULL,
    total_value     REAL    NOT NULL,
    PRIMARY KEY (strategy, ts_ms)
);

CREATE INDEX IF NOT EXISTS idx_orders_strategy ON trader_orders(strategy, status);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trader_trades(strategy, sell_ms);
`

// ApplyLedgerSchema creates the trader ledger tables if they don't exist.
func (s *SQLiteStorage) ApplyLedgerSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("storage.ApplyLedgerSchema: %w", err)
	}
	return nil
}

// SaveOrder registra una orden recién colocada junto al nivel que la originó.
func (s *SQLiteStorage) SaveOrder(ctx context.Context, strategy string, level int, o domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trader_orders
			(id, client_id, strategy, level, symbol, side, price, quantity, status,
			 filled_price, filled_qty, fee, created_ms, updated_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ClientID, strategy, level, o.Symbol, string(o.Side),
		o.Price, o.Quantity, string(o.Status),
		o.FilledPrice, o.FilledQty, o.Fee,
		toMillis(o.CreatedAt), toMillis(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder %s: %w", o.ID, err)
	}
	return nil
}

// UpdateOrder actualiza estado y datos de ejecución de una orden existente.
func (s *SQLiteStorage) UpdateOrder(ctx context.Context, o domain.Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trader_orders
		SET status = ?, filled_price = ?, filled_qty = ?, fee = ?, updated_ms = ?
		WHERE id = ?`,
		string(o.Status), o.FilledPrice, o.FilledQty, o.Fee,
		toMillis(o.UpdatedAt), o.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateOrder %s: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.UpdateOrder %s: %w", o.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("storage.UpdateOrder %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

// SaveTrade appends a completed round trip to the ledger.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, st domain.StrategyTrade) error {
	t := st.Trade
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trader_trades
			(strategy, level, buy_ms, sell_ms, buy_price, sell_price, quantity, cost, revenue, profit, roi)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Strategy, t.Level, toMillis(t.BuyTime), toMillis(t.SellTime),
		t.BuyPrice, t.SellPrice, t.Quantity, t.Cost, t.Revenue, t.Profit, t.ROI,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: %w", err)
	}
	return nil
}

// SaveSnapshot guarda el valor de la cartera; un segundo snapshot con el mismo
// timestamp reemplaza al anterior.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, strategy string, snap domain.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trader_snapshots (strategy, ts_ms, cash, positions_value, total_value)
		VALUES (?, ?, ?, ?, ?)`,
		strategy, toMillis(snap.Timestamp), snap.Cash, snap.PositionsValue, snap.TotalValue,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}
	return nil
}

// GetTrades devuelve los trades en orden de cierre. strategy vacío = todas.
func (s *SQLiteStorage) GetTrades(ctx context.Context, strategy string) ([]domain.StrategyTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy, level, buy_ms, sell_ms, buy_price, sell_price, quantity, cost, revenue, profit, roi
		FROM trader_trades
		WHERE ? = '' OR strategy = ?
		ORDER BY sell_ms, id`, strategy, strategy)
	if err != nil {
		return nil, fmt.Errorf("storage.GetTrades: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyTrade
	for rows.Next() {
		var (
			st            domain.StrategyTrade
			buyMs, sellMs int64
		)
		if err := rows.Scan(&st.Strategy, &st.Level, &buyMs, &sellMs, &st.BuyPrice, &st.SellPrice,
			&st.Quantity, &st.Cost, &st.Revenue, &st.Profit, &st.ROI); err != nil {
			return nil, fmt.Errorf("storage.GetTrades: scan: %w", err)
		}
		st.BuyTime = fromMillis(buyMs)
		st.SellTime = fromMillis(sellMs)
		out = append(out, st)
	}
	return out, rows.Err()
}
