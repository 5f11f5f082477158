package csvdata

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func hourly(n int, from time.Time) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = domain.Bar{Timestamp: from.Add(time.Duration(i) * time.Hour), Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 10}
	}
	return bars
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := NewStore(t.TempDir())
	bars := hourly(5, t0)

	require.NoError(t, s.SaveBars("btcusdt", "1h", bars))
	assert.FileExists(t, s.Path("BTCUSDT", "1h"))

	got, err := s.Load("BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, bars, got)

	ranged, err := s.FetchBars(context.Background(), "BTCUSDT", "1h", t0.Add(time.Hour), t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, t0.Add(time.Hour), ranged[0].Timestamp)
}

func TestStore_SaveMergesAndDedupes(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.SaveBars("BTCUSDT", "1h", hourly(3, t0)))
	require.NoError(t, s.SaveBars("BTCUSDT", "1h", hourly(3, t0.Add(2*time.Hour))))

	got, err := s.Load("BTCUSDT", "1h")
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
	}
}

func TestStore_MissingFile(t *testing.T) {
	_, err := NewStore(t.TempDir()).Load("ETHUSDT", "1d")
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestReadBars_Formats(t *testing.T) {
	in := `timestamp,open,high,low,close,volume
2024-01-01 00:00:00,1,2,0.5,1.5,10
2024-01-01T01:00:00Z,1.5,2.5,1,2,11
1704074400000,2,3,1.5,2.5,12
`
	bars, err := ReadBars(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, t0, bars[0].Timestamp)
	assert.Equal(t, t0.Add(time.Hour), bars[1].Timestamp)
	assert.Equal(t, t0.Add(2*time.Hour), bars[2].Timestamp)
	assert.Equal(t, 2.5, bars[2].Close)
}

func TestReadBars_Errors(t *testing.T) {
	_, err := ReadBars(strings.NewReader("timestamp,open,high,low\n"))
	assert.ErrorContains(t, err, `missing column "close"`)

	_, err = ReadBars(strings.NewReader("timestamp,open,high,low,close\nyesterday,1,2,0,1\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadBars(strings.NewReader("timestamp,open,high,low,close\n2024-01-01 00:00:00,x,2,0,1\n"))
	assert.ErrorContains(t, err, "open")

	bars, err := ReadBars(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, bars)
}

type fakeRemote struct {
	bars  []domain.Bar
	err   error
	calls int
}

func (f *fakeRemote) FetchBars(_ context.Context, _, _ string, _, _ time.Time) ([]domain.Bar, error) {
	f.calls++
	return f.bars, f.err
}

func TestCachedSource_MissThenHit(t *testing.T) {
	dir := t.TempDir()
	remote := &fakeRemote{bars: hourly(24, t0)}
	src := NewCachedSource(NewStore(dir), remote)
	end := t0.Add(24 * time.Hour)

	bars, err := src.FetchBars(context.Background(), "BTCUSDT", "1h", t0, end)
	require.NoError(t, err)
	assert.Len(t, bars, 24)
	assert.Equal(t, 1, remote.calls)

	bars, err = src.FetchBars(context.Background(), "BTCUSDT", "1h", t0, end)
	require.NoError(t, err)
	assert.Len(t, bars, 24)
	assert.Equal(t, 1, remote.calls, "second read served from disk")

	_, err = src.FetchBars(context.Background(), "BTCUSDT", "1h", t0, end.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, remote.calls, "range beyond cache refetches")
}

func TestCachedSource_RemoteError(t *testing.T) {
	src := NewCachedSource(NewStore(t.TempDir()), &fakeRemote{err: errors.New("boom")})
	_, err := src.FetchBars(context.Background(), "BTCUSDT", "1h", t0, t0.Add(time.Hour))
	assert.ErrorContains(t, err, "boom")
}

func TestCachedSource_EmptyRemoteNotCached(t *testing.T) {
	dir := t.TempDir()
	src := NewCachedSource(NewStore(dir), &fakeRemote{})
	bars, err := src.FetchBars(context.Background(), "BTCUSDT", "1h", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, bars)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIntervalDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range tests {
		got, err := IntervalDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "h", "0h", "3x"} {
		_, err := IntervalDuration(bad)
		assert.Error(t, err, bad)
	}
}
