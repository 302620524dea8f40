package results

import (
	"context"
	"database/sql"
	"math"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/correlation"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/stress"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/volatility"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertAndHasFactorExposures(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()

	has, err := repo.Has(ctx, 1, "2025-01-02", KindFactorExposures)
	require.NoError(t, err)
	assert.False(t, has)

	result := &factors.FactorBetaResult{
		Status: factors.StatusOK,
		Portfolio: factors.FactorExposure{
			Status: factors.StatusOK, EntityType: "portfolio",
			Betas:    map[factors.FactorID]float64{factors.FactorMarket: 1.1, factors.FactorValue: -0.2},
			RSquared: 0.85, ResidualVol: 0.12, Observations: 250,
		},
		Positions: []factors.FactorExposure{
			{Status: factors.StatusOK, EntityType: "position", Symbol: "AAPL",
				Betas: map[factors.FactorID]float64{factors.FactorMarket: 1.3}, RSquared: 0.8, Observations: 250},
			{Status: factors.StatusInsufficientHistory, EntityType: "position", Symbol: "NEWCO", Observations: 10},
		},
		Spreads: []factors.SpreadExposure{
			{Status: factors.StatusOK, EntityType: "portfolio", Factor: factors.FactorValue, Beta: 0.4, RSquared: 0.3, Observations: 250},
		},
	}

	require.NoError(t, repo.UpsertFactorExposures(ctx, 1, "2025-01-02", result))

	has, err = repo.Has(ctx, 1, "2025-01-02", KindFactorExposures)
	require.NoError(t, err)
	assert.True(t, has)

	rows, err := repo.GetExposures(ctx, 1, "2025-01-02")
	require.NoError(t, err)
	// 2 portfolio factors + 1 AAPL factor + 1 degraded marker
	assert.Len(t, rows, 4)

	// Degraded entity persists a marker row with its status
	var markers int
	for _, row := range rows {
		if row.Symbol == "NEWCO" {
			markers++
			assert.Equal(t, string(factors.StatusInsufficientHistory), row.Status)
		}
	}
	assert.Equal(t, 1, markers)

	spreads, err := repo.GetSpreads(ctx, 1, "2025-01-02")
	require.NoError(t, err)
	require.Len(t, spreads, 1)
	assert.Equal(t, "value", spreads[0].Factor)

	// Forced overwrite replaces, never duplicates
	result.Portfolio.Betas[factors.FactorMarket] = 1.5
	require.NoError(t, repo.UpsertFactorExposures(ctx, 1, "2025-01-02", result))

	rows, err = repo.GetExposures(ctx, 1, "2025-01-02")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	for _, row := range rows {
		if row.EntityType == "portfolio" && row.Factor == "market" {
			assert.Equal(t, 1.5, row.Beta)
		}
	}
}

func TestUpsertBeta(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()

	beta := &factors.DualWindowBeta{
		Status: factors.StatusOK, Factor: factors.FactorMarket,
		RecentBeta: 1.4, RecentR2: 0.7, BaselineBeta: 1.1, BaselineR2: 0.75,
		RegimeShift: true, Observations: 250,
	}
	require.NoError(t, repo.UpsertBeta(ctx, 1, "2025-01-02", beta))

	has, err := repo.Has(ctx, 1, "2025-01-02", KindMarketBeta)
	require.NoError(t, err)
	assert.True(t, has)

	// Rate beta is a separate kind
	has, err = repo.Has(ctx, 1, "2025-01-02", KindRateBeta)
	require.NoError(t, err)
	assert.False(t, has)

	rows, err := repo.GetBetas(ctx, 1, "2025-01-02")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].RegimeShift)
	assert.Equal(t, 1.4, rows[0].RecentBeta)
}

func TestCorrelationMatrixRoundTrip(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()

	result := &correlation.Result{
		Status:  correlation.StatusOK,
		Symbols: []string{"AAPL", "MSFT", "THIN"},
		Matrix: [][]float64{
			{1.0, 0.82, math.NaN()},
			{0.82, 1.0, math.NaN()},
			{math.NaN(), math.NaN(), 1.0},
		},
		Flagged:            []correlation.FlaggedPair{{A: "AAPL", B: "THIN", Observations: 4}, {A: "MSFT", B: "THIN", Observations: 4}},
		Clusters:           [][]string{{"AAPL", "MSFT"}},
		TopPairs:           []correlation.Pair{{A: "AAPL", B: "MSFT", Correlation: 0.82}},
		HHI:                3400,
		EffectivePositions: 2.94,
		AvgCorrelation:     0.82,
	}

	require.NoError(t, repo.UpsertCorrelation(ctx, 1, "2025-01-02", result))

	record, err := repo.GetCorrelation(ctx, 1, "2025-01-02")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, []string{"AAPL", "MSFT", "THIN"}, record.Symbols)
	assert.Equal(t, 0.82, record.Matrix[0][1])
	assert.True(t, math.IsNaN(record.Matrix[0][2]), "NaN survives the msgpack round trip")
	assert.Equal(t, [][]string{{"AAPL", "MSFT"}}, record.Clusters)
	assert.Len(t, record.Flagged, 2)
	assert.Equal(t, 3400.0, record.HHI)

	missing, err := repo.GetCorrelation(ctx, 1, "2025-01-03")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertStress(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()

	result := &stress.Result{
		Status: stress.StatusOK, ScenarioID: "market_down_10",
		DirectPnL: -1000, CorrelatedPnL: -1200, CorrelationEffect: -200,
		Clipped: false, MissingFactors: []factors.FactorID{factors.FactorInterestRate},
	}
	require.NoError(t, repo.UpsertStress(ctx, 1, "2025-01-02", result))

	has, err := repo.Has(ctx, 1, "2025-01-02", KindStress)
	require.NoError(t, err)
	assert.True(t, has)

	records, err := repo.GetStress(ctx, 1, "2025-01-02")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, -1200.0, records[0].CorrelatedPnL)
	assert.Equal(t, []string{"interest_rate"}, records[0].MissingFactors)
}

func TestUpsertVolatility(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()

	forecast := &volatility.Forecast{
		Status: volatility.StatusOK, Annualized: 0.18, HorizonVol: 0.052,
		Horizon: 21, Method: volatility.MethodHAROLS, RSquared: 0.4,
		Observations: 200, WeightSource: "market",
	}
	require.NoError(t, repo.UpsertVolatility(ctx, 1, "2025-01-02", forecast))

	record, err := repo.GetVolatility(ctx, 1, "2025-01-02")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 0.18, record.Annualized)
	assert.Equal(t, "har_ols", record.Method)

	none, err := repo.GetVolatility(ctx, 2, "2025-01-02")
	require.NoError(t, err)
	assert.Nil(t, none)
}
