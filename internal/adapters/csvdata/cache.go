package csvdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

// CachedSource lee primero del Store local y, si no cubre el rango pedido,
// descarga del remoto y escribe el resultado a disco.
type CachedSource struct {
	local  *Store
	remote ports.HistoricalDataSource
}

// NewCachedSource envuelve remote con un caché CSV en local.
func NewCachedSource(local *Store, remote ports.HistoricalDataSource) *CachedSource {
	return &CachedSource{local: local, remote: remote}
}

// FetchBars implementa ports.HistoricalDataSource.
func (c *CachedSource) FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := c.local.FetchBars(ctx, symbol, interval, start, end)
	switch {
	case err == nil && covers(bars, start, end, interval):
		slog.Debug("csvdata: cache hit", "symbol", symbol, "interval", interval, "bars", len(bars))
		return bars, nil
	case err != nil && !errors.Is(err, ErrNoData):
		slog.Warn("csvdata: unreadable cache, refetching", "symbol", symbol, "err", err)
	}

	slog.Info("csvdata: cache miss, fetching remote", "symbol", symbol, "interval", interval, "from", start, "to", end)
	bars, err = c.remote.FetchBars(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("csvdata.CachedSource: %w", err)
	}
	if len(bars) > 0 {
		if err := c.local.SaveBars(symbol, interval, bars); err != nil {
			slog.Warn("csvdata: cache write failed", "symbol", symbol, "err", err)
		}
	}
	return bars, nil
}

// covers reports whether bars span [start, end) to within one interval at
// each edge.
func covers(bars []domain.Bar, start, end time.Time, interval string) bool {
	if len(bars) == 0 {
		return false
	}
	step, err := IntervalDuration(interval)
	if err != nil {
		return true
	}
	first, last := bars[0].Timestamp, bars[len(bars)-1].Timestamp
	return !first.After(start.Add(step)) && !last.Add(2*step).Before(end)
}

// IntervalDuration parses Binance kline intervals such as 1m, 4h, 1d, 1w.
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("interval %q: too short", interval)
	}
	var n int
	if _, err := fmt.Sscanf(interval[:len(interval)-1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("interval %q: bad count", interval)
	}
	unit := map[byte]time.Duration{
		's': time.Second,
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	}[interval[len(interval)-1]]
	if unit == 0 {
		return 0, fmt.Errorf("interval %q: unknown unit", interval)
	}
	return time.Duration(n) * unit, nil
}
