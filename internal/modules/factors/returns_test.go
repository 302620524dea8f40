package factors

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/marketdata"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/pricecache"
)

type fixedReader struct {
	points []marketdata.PricePoint
}

func (f *fixedReader) GetRange(_ context.Context, _ []string, _, _ string) ([]marketdata.PricePoint, error) {
	return f.points, nil
}

// testDates generates n consecutive weekday date strings starting 2024-01-02
func testDates(n int) []string {
	dates := make([]string, 0, n)
	d := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	for len(dates) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			dates = append(dates, d.Format(marketdata.DateFormat))
		}
		d = d.AddDate(0, 0, 1)
	}
	return dates
}

// cacheWith loads a cache with the given points in one shot
func cacheWith(t *testing.T, points []marketdata.PricePoint) *pricecache.Cache {
	t.Helper()
	cache := pricecache.New(&fixedReader{points: points}, zerolog.Nop())
	require.NoError(t, cache.Load(context.Background(), nil, "2024-01-01", "2030-12-31"))
	return cache
}

// seriesPoints builds closes for one symbol whose daily return on dates[i]
// is returnAt(i), starting from 100.
func seriesPoints(symbol string, dates []string, returnAt func(i int) float64) []marketdata.PricePoint {
	points := make([]marketdata.PricePoint, len(dates))
	price := 100.0
	for i, d := range dates {
		if i > 0 {
			price *= 1 + returnAt(i)
		}
		points[i] = marketdata.PricePoint{Symbol: symbol, Date: d, Close: price}
	}
	return points
}

func sinReturn(i int) float64 {
	return 0.01 * math.Sin(float64(i))
}

func TestBuilderReturns(t *testing.T) {
	dates := testDates(4)
	cache := cacheWith(t, []marketdata.PricePoint{
		{Symbol: "AAPL", Date: dates[0], Close: 100},
		{Symbol: "AAPL", Date: dates[1], Close: 102},
		// dates[2] missing: no return for dates[2] or dates[3]... dates[3]
		// also lacks its previous close
		{Symbol: "AAPL", Date: dates[3], Close: 104},
	})

	returns := NewSeriesBuilder(cache).Returns("AAPL", dates)
	require.Len(t, returns, 1)
	assert.InDelta(t, 0.02, returns[dates[1]], 1e-9)
}

func TestBuilderPortfolioReturns(t *testing.T) {
	dates := testDates(3)
	cache := cacheWith(t, []marketdata.PricePoint{
		{Symbol: "AAPL", Date: dates[0], Close: 100},
		{Symbol: "AAPL", Date: dates[1], Close: 110}, // +10%
		{Symbol: "AAPL", Date: dates[2], Close: 110},
		{Symbol: "MSFT", Date: dates[0], Close: 200},
		{Symbol: "MSFT", Date: dates[1], Close: 210}, // +5%
		// MSFT missing on dates[2]
	})

	weights := portfolio.WeightSet{
		Weights: []portfolio.PositionWeight{
			{Symbol: "AAPL", Weight: 0.5},
			{Symbol: "MSFT", Weight: 0.5},
		},
	}

	returns := NewSeriesBuilder(cache).PortfolioReturns(weights, dates)
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.075, returns[dates[1]], 1e-9)
	// Renormalized over covered weight when MSFT has no return
	assert.InDelta(t, 0.0, returns[dates[2]], 1e-9)
}

func TestBuilderSpreadReturns(t *testing.T) {
	dates := testDates(2)
	cache := cacheWith(t, []marketdata.PricePoint{
		{Symbol: "VTV", Date: dates[0], Close: 100},
		{Symbol: "VTV", Date: dates[1], Close: 103}, // +3%
		{Symbol: "VUG", Date: dates[0], Close: 100},
		{Symbol: "VUG", Date: dates[1], Close: 101}, // +1%
	})

	spread := NewSeriesBuilder(cache).SpreadReturns(SpreadPair{Factor: FactorValue, Long: "VTV", Short: "VUG"}, dates)
	require.Len(t, spread, 1)
	assert.InDelta(t, 0.02, spread[dates[1]], 1e-9)
}

func TestAlignDatesAndSample(t *testing.T) {
	dates := []string{"d1", "d2", "d3", "d4"}
	a := map[string]float64{"d1": 1, "d2": 2, "d4": 4}
	b := map[string]float64{"d2": 20, "d3": 30, "d4": 40}

	aligned := AlignDates(dates, a, b)
	assert.Equal(t, []string{"d2", "d4"}, aligned)

	assert.Equal(t, []float64{2, 4}, Sample(a, aligned))
	assert.Equal(t, []float64{20, 40}, Sample(b, aligned))
}

func TestSeriesPointsHelper(t *testing.T) {
	dates := testDates(3)
	points := seriesPoints("SPY", dates, func(i int) float64 { return 0.01 })
	assert.Equal(t, fmt.Sprintf("%.2f", 102.01), fmt.Sprintf("%.2f", points[2].Close))
}
