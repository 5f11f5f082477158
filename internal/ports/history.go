package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// HistoricalDataSource yields OHLCV bars for a symbol in ascending timestamp
// order over [start, end).
type HistoricalDataSource interface {
	FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error)
}

// BarWriter persists bars fetched from a remote source.
type BarWriter interface {
	SaveBars(symbol, interval string, bars []domain.Bar) error
}
