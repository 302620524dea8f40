package volatility

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/marketdata"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/pricecache"
)

type fixedReader struct {
	points []marketdata.PricePoint
}

func (f *fixedReader) GetRange(_ context.Context, _ []string, _, _ string) ([]marketdata.PricePoint, error) {
	return f.points, nil
}

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

func builderFor(t *testing.T, symbol string, dates []string, returnAt func(i int) float64) *factors.SeriesBuilder {
	t.Helper()
	points := make([]marketdata.PricePoint, len(dates))
	price := 100.0
	for i, d := range dates {
		if i > 0 {
			price *= 1 + returnAt(i)
		}
		points[i] = marketdata.PricePoint{Symbol: symbol, Date: d, Close: price}
	}
	cache := pricecache.New(&fixedReader{points: points}, zerolog.Nop())
	require.NoError(t, cache.Load(context.Background(), nil, "2024-01-01", "2030-12-31"))
	return factors.NewSeriesBuilder(cache)
}

func singleWeight(symbol string, source portfolio.ValueSource) portfolio.WeightSet {
	return portfolio.WeightSet{
		Weights:    []portfolio.PositionWeight{{Symbol: symbol, Weight: 1.0, Value: 1000, Source: source}},
		TotalValue: 1000,
	}
}

func TestConstantVolatilityFixedWeightFallback(t *testing.T) {
	dates := testDates(100)
	// Alternating +1%/-1%: realized variance is constant, the OLS system is
	// singular, and the fixed-weight path must reproduce 1% daily vol
	builder := builderFor(t, "AAPL", dates, func(i int) float64 {
		if i%2 == 0 {
			return 0.01
		}
		return -0.01
	})

	engine := NewEngine(EngineConfig{MinObservations: 63, Horizon: 21}, zerolog.Nop())
	forecast := engine.Compute(builder, singleWeight("AAPL", portfolio.ValueSourceMarket), dates)

	require.Equal(t, StatusOK, forecast.Status)
	assert.Equal(t, MethodFixedWeights, forecast.Method)
	assert.InDelta(t, 0.01*math.Sqrt(252), forecast.Annualized, 1e-3)
	assert.InDelta(t, 0.01*math.Sqrt(21), forecast.HorizonVol, 1e-3)
	assert.Equal(t, 21, forecast.Horizon)
	assert.Equal(t, "market", forecast.WeightSource)
}

func TestVaryingVolatilityProducesPositiveForecast(t *testing.T) {
	dates := testDates(150)
	builder := builderFor(t, "AAPL", dates, func(i int) float64 {
		return 0.01 * math.Sin(float64(i)) * (1 + 0.5*math.Sin(float64(i)/20))
	})

	engine := NewEngine(EngineConfig{}, zerolog.Nop())
	forecast := engine.Compute(builder, singleWeight("AAPL", portfolio.ValueSourceMarket), dates)

	require.Equal(t, StatusOK, forecast.Status)
	assert.Greater(t, forecast.Annualized, 0.0)
	assert.Greater(t, forecast.HorizonVol, 0.0)
	assert.Less(t, forecast.HorizonVol, forecast.Annualized)
}

func TestInsufficientData(t *testing.T) {
	dates := testDates(40)
	builder := builderFor(t, "AAPL", dates, func(int) float64 { return 0.01 })

	engine := NewEngine(EngineConfig{MinObservations: 63}, zerolog.Nop())
	forecast := engine.Compute(builder, singleWeight("AAPL", portfolio.ValueSourceMarket), dates)

	assert.Equal(t, StatusInsufficientData, forecast.Status)
	assert.Equal(t, 39, forecast.Observations)
}

func TestNoPriceHistory(t *testing.T) {
	dates := testDates(100)
	builder := builderFor(t, "SPY", dates, func(int) float64 { return 0.01 })

	engine := NewEngine(EngineConfig{}, zerolog.Nop())
	forecast := engine.Compute(builder, singleWeight("ZZZZ", portfolio.ValueSourceMarket), dates)
	assert.Equal(t, StatusInsufficientData, forecast.Status)
}

func TestNoEligiblePositions(t *testing.T) {
	engine := NewEngine(EngineConfig{}, zerolog.Nop())
	forecast := engine.Compute(builderFor(t, "SPY", testDates(10), func(int) float64 { return 0 }), portfolio.WeightSet{}, testDates(10))
	assert.Equal(t, StatusNoEligiblePositions, forecast.Status)
}

func TestEntryWeightSourceReported(t *testing.T) {
	dates := testDates(100)
	builder := builderFor(t, "AAPL", dates, func(i int) float64 {
		if i%2 == 0 {
			return 0.01
		}
		return -0.01
	})

	engine := NewEngine(EngineConfig{}, zerolog.Nop())
	forecast := engine.Compute(builder, singleWeight("AAPL", portfolio.ValueSourceEntry), dates)

	require.Equal(t, StatusOK, forecast.Status)
	assert.Equal(t, "entry", forecast.WeightSource)
}
