package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// klinesPageLimit is the maximum number of candles per /api/v3/klines call.
const klinesPageLimit = 1000

// FetchBars implementa ports.HistoricalDataSource. Pagina /api/v3/klines de
// 1000 en 1000 hasta cubrir [start, end).
func (c *Client) FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	from := start.UnixMilli()
	to := end.UnixMilli() - 1

	for from <= to {
		q := url.Values{}
		q.Set("symbol", symbol)
		q.Set("interval", interval)
		q.Set("startTime", strconv.FormatInt(from, 10))
		q.Set("endTime", strconv.FormatInt(to, 10))
		q.Set("limit", strconv.Itoa(klinesPageLimit))

		var raw [][]json.RawMessage
		if err := c.get(ctx, "/api/v3/klines", q, &raw); err != nil {
			return nil, fmt.Errorf("binance.FetchBars %s %s: %w", symbol, interval, err)
		}

		page, err := parseKlines(raw)
		if err != nil {
			return nil, fmt.Errorf("binance.FetchBars %s %s: %w", symbol, interval, err)
		}
		for _, b := range page {
			if len(bars) > 0 && !b.Timestamp.After(bars[len(bars)-1].Timestamp) {
				continue
			}
			bars = append(bars, b)
		}

		if len(page) < klinesPageLimit {
			break
		}
		from = page[len(page)-1].Timestamp.UnixMilli() + 1
	}

	slog.Debug("binance: klines fetched", "symbol", symbol, "interval", interval, "bars", len(bars))
	return bars, nil
}

// parseKlines decodifica el formato posicional de Binance:
// [openTime, open, high, low, close, volume, closeTime, ...] con precios como strings.
func parseKlines(raw [][]json.RawMessage) ([]domain.Bar, error) {
	bars := make([]domain.Bar, 0, len(raw))
	for i, k := range raw {
		if len(k) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(k))
		}
		var openTime int64
		if err := json.Unmarshal(k[0], &openTime); err != nil {
			return nil, fmt.Errorf("kline %d: open time: %w", i, err)
		}

		vals := make([]float64, 5)
		for j := range vals {
			var s string
			if err := json.Unmarshal(k[j+1], &s); err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			vals[j] = v
		}

		bars = append(bars, domain.Bar{
			Timestamp: time.UnixMilli(openTime).UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return bars, nil
}
