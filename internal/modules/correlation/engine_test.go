package correlation

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

func builderWith(t *testing.T, points []marketdata.PricePoint) *factors.SeriesBuilder {
	t.Helper()
	cache := pricecache.New(&fixedReader{points: points}, zerolog.Nop())
	require.NoError(t, cache.Load(context.Background(), nil, "2024-01-01", "2030-12-31"))
	return factors.NewSeriesBuilder(cache)
}

func equalWeights(symbols ...string) portfolio.WeightSet {
	w := 1.0 / float64(len(symbols))
	set := portfolio.WeightSet{TotalValue: 1000}
	for _, s := range symbols {
		set.Weights = append(set.Weights, portfolio.PositionWeight{Symbol: s, Weight: w, Source: portfolio.ValueSourceMarket})
	}
	return set
}

func sinReturn(i int) float64 { return 0.01 * math.Sin(float64(i)) }
func cosReturn(i int) float64 { return 0.01 * math.Cos(float64(i)) }

func TestMatrixSymmetricWithUnitDiagonal(t *testing.T) {
	dates := testDates(60)
	var points []marketdata.PricePoint
	points = append(points, seriesPoints("A", dates, sinReturn)...)
	points = append(points, seriesPoints("B", dates, sinReturn)...)
	points = append(points, seriesPoints("C", dates, cosReturn)...)

	engine := NewEngine(EngineConfig{}, zerolog.Nop())
	result := engine.Compute(builderWith(t, points), equalWeights("A", "B", "C"), dates)

	require.Equal(t, StatusOK, result.Status)
	require.Len(t, result.Matrix, 3)

	for i := range result.Matrix {
		assert.Equal(t, 1.0, result.Matrix[i][i])
		for j := range result.Matrix {
			if math.IsNaN(result.Matrix[i][j]) {
				assert.True(t, math.IsNaN(result.Matrix[j][i]))
				continue
			}
			assert.Equal(t, result.Matrix[i][j], result.Matrix[j][i])
			assert.GreaterOrEqual(t, result.Matrix[i][j], -1.0)
			assert.LessOrEqual(t, result.Matrix[i][j], 1.0)
		}
	}

	// A and B move identically
	assert.InDelta(t, 1.0, result.Matrix[0][1], 1e-9)
	assert.Empty(t, result.Flagged)
}

func TestClustersConnectedComponents(t *testing.T) {
	dates := testDates(60)
	var points []marketdata.PricePoint
	points = append(points, seriesPoints("A", dates, sinReturn)...)
	points = append(points, seriesPoints("B", dates, sinReturn)...)
	points = append(points, seriesPoints("C", dates, cosReturn)...)

	engine := NewEngine(EngineConfig{ClusterThreshold: 0.70}, zerolog.Nop())
	result := engine.Compute(builderWith(t, points), equalWeights("A", "B", "C"), dates)

	require.Len(t, result.Clusters, 1)
	assert.Equal(t, []string{"A", "B"}, result.Clusters[0])
}

func TestConcentrationEqualWeights(t *testing.T) {
	hhi, effective := Concentration(equalWeights("A", "B", "C", "D"))
	assert.InDelta(t, 2500.0, hhi, 1e-9)
	assert.InDelta(t, 4.0, effective, 1e-9)

	hhi, effective = Concentration(portfolio.WeightSet{})
	assert.Zero(t, hhi)
	assert.Zero(t, effective)
}

func TestUndefinedPairsFlaggedNotZeroed(t *testing.T) {
	dates := testDates(60)
	var points []marketdata.PricePoint
	points = append(points, seriesPoints("A", dates, sinReturn)...)
	// FLAT never moves: zero variance, correlation undefined
	points = append(points, seriesPoints("FLAT", dates, func(int) float64 { return 0 })...)
	// THIN only has a handful of closes: too little overlap
	points = append(points, seriesPoints("THIN", dates[:5], sinReturn)...)

	engine := NewEngine(EngineConfig{MinOverlap: 30}, zerolog.Nop())
	result := engine.Compute(builderWith(t, points), equalWeights("A", "FLAT", "THIN"), dates)

	require.Equal(t, StatusOK, result.Status)
	assert.Len(t, result.Flagged, 3)
	assert.True(t, math.IsNaN(result.Matrix[0][1]))
	assert.True(t, math.IsNaN(result.Matrix[0][2]))

	// Undefined pairs never make the reporting list
	assert.Empty(t, result.TopPairs)
	assert.Zero(t, result.AvgCorrelation)
}

func TestTopPairsOrdering(t *testing.T) {
	dates := testDates(60)
	var points []marketdata.PricePoint
	points = append(points, seriesPoints("A", dates, sinReturn)...)
	points = append(points, seriesPoints("B", dates, sinReturn)...)
	points = append(points, seriesPoints("C", dates, func(i int) float64 { return sinReturn(i) + 0.2*cosReturn(i) })...)

	engine := NewEngine(EngineConfig{TopN: 2}, zerolog.Nop())
	result := engine.Compute(builderWith(t, points), equalWeights("A", "B", "C"), dates)

	require.Len(t, result.TopPairs, 2)
	assert.Equal(t, "A", result.TopPairs[0].A)
	assert.Equal(t, "B", result.TopPairs[0].B)
	assert.GreaterOrEqual(t, result.TopPairs[0].Correlation, result.TopPairs[1].Correlation)
}

func TestNoEligiblePositions(t *testing.T) {
	engine := NewEngine(EngineConfig{}, zerolog.Nop())
	result := engine.Compute(builderWith(t, nil), portfolio.WeightSet{}, testDates(60))
	assert.Equal(t, StatusNoEligiblePositions, result.Status)
}
