// Package csvdata stores OHLCV bars as CSV files, one file per symbol and
// interval, and caches a remote HistoricalDataSource on disk.
package csvdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

var header = []string{"timestamp", "open", "high", "low", "close", "volume"}

// ErrNoData is returned when no file exists for a symbol/interval.
var ErrNoData = errors.New("no local data")

// Store lee y escribe <dir>/<SYMBOL>_<interval>.csv.
type Store struct {
	dir string
}

// NewStore crea un Store sobre dir. El directorio se crea al escribir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path devuelve el archivo para symbol/interval.
func (s *Store) Path(symbol, interval string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), interval))
}

// FetchBars implementa ports.HistoricalDataSource sobre el archivo local,
// devolviendo las velas en [start, end). Un start/end cero no filtra.
func (s *Store) FetchBars(_ context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := s.Load(symbol, interval)
	if err != nil {
		return nil, err
	}
	out := bars[:0]
	for _, b := range bars {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !b.Timestamp.Before(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Load lee el archivo completo. Acepta timestamps "2006-01-02 15:04:05",
// RFC3339 o epoch en milisegundos.
func (s *Store) Load(symbol, interval string) ([]domain.Bar, error) {
	path := s.Path(symbol, interval)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("csvdata.Load %s: %w", path, ErrNoData)
	}
	if err != nil {
		return nil, fmt.Errorf("csvdata.Load: %w", err)
	}
	defer f.Close()

	bars, err := ReadBars(f)
	if err != nil {
		return nil, fmt.Errorf("csvdata.Load %s: %w", path, err)
	}
	slog.Debug("csvdata: loaded", "path", path, "bars", len(bars))
	return bars, nil
}

// ReadBars parses CSV with a header row naming at least the OHLC columns.
func ReadBars(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(head))
	for i, h := range head {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range header[:5] {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseRecord(rec []string, cols map[string]int) (domain.Bar, error) {
	ts, err := parseTime(rec[cols["timestamp"]])
	if err != nil {
		return domain.Bar{}, err
	}
	b := domain.Bar{Timestamp: ts}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close}, {"volume", &b.Volume},
	}
	for _, f := range fields {
		idx, ok := cols[f.name]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return b, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("timestamp %q: unrecognized format", s)
}

// SaveBars implementa ports.BarWriter. Fusiona con lo que ya exista en disco,
// deduplica por timestamp y reescribe el archivo ordenado.
func (s *Store) SaveBars(symbol, interval string, bars []domain.Bar) error {
	existing, err := s.Load(symbol, interval)
	if err != nil && !errors.Is(err, ErrNoData) {
		return err
	}

	byTime := make(map[int64]domain.Bar, len(existing)+len(bars))
	for _, b := range existing {
		byTime[b.Timestamp.UnixMilli()] = b
	}
	for _, b := range bars {
		byTime[b.Timestamp.UnixMilli()] = b
	}
	merged := make([]domain.Bar, 0, len(byTime))
	for _, b := range byTime {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("csvdata.SaveBars: %w", err)
	}
	path := s.Path(symbol, interval)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("csvdata.SaveBars: %w", err)
	}
	if err := WriteBars(f, merged); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("csvdata.SaveBars %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("csvdata.SaveBars: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("csvdata.SaveBars: %w", err)
	}

	slog.Info("csvdata: saved", "path", path, "bars", len(merged))
	return nil
}

// WriteBars writes bars with a header row.
func WriteBars(w io.Writer, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Timestamp.UTC().Format(timeLayout),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
