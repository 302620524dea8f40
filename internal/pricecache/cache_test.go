package pricecache

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/marketdata"
)

type stubReader struct {
	points []marketdata.PricePoint
	calls  int
}

func (s *stubReader) GetRange(_ context.Context, _ []string, _, _ string) ([]marketdata.PricePoint, error) {
	s.calls++
	return s.points, nil
}

func TestCacheLoadAndGet(t *testing.T) {
	reader := &stubReader{points: []marketdata.PricePoint{
		{Symbol: "AAPL", Date: "2025-01-02", Close: 185.0},
		{Symbol: "AAPL", Date: "2025-01-03", Close: 186.5},
		{Symbol: "SPY", Date: "2025-01-02", Close: 470.0},
	}}

	cache := New(reader, zerolog.Nop())
	require.NoError(t, cache.Load(context.Background(), []string{"AAPL", "SPY"}, "2025-01-02", "2025-01-03"))
	assert.Equal(t, 1, reader.calls, "load must perform exactly one bulk read")

	close, ok := cache.Get("AAPL", "2025-01-03")
	require.True(t, ok)
	assert.Equal(t, 186.5, close)

	_, ok = cache.Get("AAPL", "2025-01-04")
	assert.False(t, ok, "date outside loaded data is a miss")

	_, ok = cache.Get("MSFT", "2025-01-02")
	assert.False(t, ok, "unknown symbol is a miss")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 2, stats.Symbols)
	assert.Equal(t, 3, stats.Prices)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 1e-9)
}

func TestCacheLoadReplacesContents(t *testing.T) {
	reader := &stubReader{points: []marketdata.PricePoint{
		{Symbol: "AAPL", Date: "2025-01-02", Close: 185.0},
	}}
	cache := New(reader, zerolog.Nop())
	require.NoError(t, cache.Load(context.Background(), []string{"AAPL"}, "2025-01-02", "2025-01-02"))

	_, ok := cache.Get("AAPL", "2025-01-02")
	require.True(t, ok)

	// Second load with different contents must replace, not merge
	reader.points = []marketdata.PricePoint{
		{Symbol: "SPY", Date: "2025-01-03", Close: 471.0},
	}
	require.NoError(t, cache.Load(context.Background(), []string{"SPY"}, "2025-01-03", "2025-01-03"))

	_, ok = cache.Get("AAPL", "2025-01-02")
	assert.False(t, ok, "prior contents must be gone after reload")

	_, ok = cache.Get("SPY", "2025-01-03")
	assert.True(t, ok)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits, "counters reset on reload")
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCacheEmptyLoadIsValid(t *testing.T) {
	cache := New(&stubReader{}, zerolog.Nop())
	require.NoError(t, cache.Load(context.Background(), nil, "2025-01-02", "2025-01-03"))
	assert.True(t, cache.Loaded())

	_, ok := cache.Get("AAPL", "2025-01-02")
	assert.False(t, ok)
}

func TestCacheCloses(t *testing.T) {
	reader := &stubReader{points: []marketdata.PricePoint{
		{Symbol: "AAPL", Date: "2025-01-02", Close: 185.0},
		{Symbol: "AAPL", Date: "2025-01-03", Close: 186.5},
		{Symbol: "AAPL", Date: "2025-01-06", Close: 188.0},
	}}
	cache := New(reader, zerolog.Nop())
	require.NoError(t, cache.Load(context.Background(), []string{"AAPL"}, "2025-01-02", "2025-01-06"))

	// 2025-01-04 is absent; Closes skips it rather than faking a value
	closes := cache.Closes("AAPL", []string{"2025-01-02", "2025-01-03", "2025-01-04", "2025-01-06"})
	assert.Equal(t, []float64{185.0, 186.5, 188.0}, closes)
}
