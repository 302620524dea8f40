package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/marketdata"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/stress"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/volatility"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/results"
)

const testDate = "2025-01-10"

func setupRouter(t *testing.T) (*chi.Mux, *results.Repository, *results.BatchRunRepository) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, ddl := range []string{portfolio.Schema, factors.Schema, stress.Schema, results.Schema} {
		_, err = db.Exec(ddl)
		require.NoError(t, err)
	}
	_, err = db.Exec(`
		INSERT INTO portfolios (id, name, active) VALUES (1, 'Growth', 1);
		INSERT INTO positions (portfolio_id, symbol, quantity, entry_price, market_value) VALUES
			(1, 'AAPL', 10, 150, 2000);
	`)
	require.NoError(t, err)

	log := zerolog.Nop()
	resultsRepo := results.NewRepository(db, log)
	runsRepo := results.NewBatchRunRepository(db, log)

	riskHandlers := NewRiskHandlers(portfolio.NewRepository(db, log), resultsRepo, marketdata.NewCalendar(), log)
	batchHandlers := NewBatchHandlers(nil, runsRepo, log)

	router := chi.NewRouter()
	router.Get("/api/batch/runs", batchHandlers.HandleRecentRuns)
	router.Get("/api/batch/runs/{id}", batchHandlers.HandleGetRun)
	router.Get("/api/portfolios", riskHandlers.HandleListPortfolios)
	router.Route("/api/portfolios/{id}/risk", func(r chi.Router) {
		r.Get("/exposures", riskHandlers.HandleExposures)
		r.Get("/correlation", riskHandlers.HandleCorrelation)
		r.Get("/stress", riskHandlers.HandleStress)
		r.Get("/volatility", riskHandlers.HandleVolatility)
	})

	return router, resultsRepo, runsRepo
}

func doGet(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	body := make(map[string]interface{})
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestListPortfolios(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec, body := doGet(t, router, "/api/portfolios")
	require.Equal(t, http.StatusOK, rec.Code)

	portfolios := body["portfolios"].([]interface{})
	require.Len(t, portfolios, 1)
	assert.Equal(t, "Growth", portfolios[0].(map[string]interface{})["name"])
}

func TestVolatilityEndpoint(t *testing.T) {
	router, resultsRepo, _ := setupRouter(t)

	forecast := &volatility.Forecast{
		Status:       volatility.StatusOK,
		Annualized:   0.18,
		HorizonVol:   0.05,
		Horizon:      21,
		Method:       volatility.MethodHAROLS,
		Observations: 250,
		WeightSource: "market",
	}
	require.NoError(t, resultsRepo.UpsertVolatility(context.Background(), 1, testDate, forecast))

	rec, body := doGet(t, router, "/api/portfolios/1/risk/volatility?date="+testDate)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, testDate, body["calculation_date"])
	got := body["forecast"].(map[string]interface{})
	assert.InDelta(t, 0.18, got["annualized"].(float64), 1e-9)
	assert.Equal(t, "har_ols", got["method"])
}

func TestRiskEndpointErrors(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec, _ := doGet(t, router, "/api/portfolios/1/risk/volatility?date="+testDate)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no persisted results yet")

	rec, _ = doGet(t, router, "/api/portfolios/99/risk/volatility?date="+testDate)
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown portfolio")

	rec, _ = doGet(t, router, "/api/portfolios/abc/risk/volatility")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doGet(t, router, "/api/portfolios/1/risk/volatility?date=10-01-2025")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStressEndpoint(t *testing.T) {
	router, resultsRepo, _ := setupRouter(t)

	result := &stress.Result{
		ScenarioID:    "market_down_10",
		Status:        stress.StatusOK,
		DirectPnL:     -1000,
		CorrelatedPnL: -1200,
	}
	require.NoError(t, resultsRepo.UpsertStress(context.Background(), 1, testDate, result))

	rec, body := doGet(t, router, "/api/portfolios/1/risk/stress?date="+testDate)
	require.Equal(t, http.StatusOK, rec.Code)

	scenarios := body["scenarios"].([]interface{})
	require.Len(t, scenarios, 1)
	assert.Equal(t, "market_down_10", scenarios[0].(map[string]interface{})["scenario_id"])
}

func TestBatchRunEndpoints(t *testing.T) {
	router, _, runsRepo := setupRouter(t)
	ctx := context.Background()

	run := &results.BatchRun{
		ID:           uuid.NewString(),
		TargetDate:   testDate,
		LookbackDays: 5,
		TriggeredBy:  "api",
		StartedAt:    time.Now(),
	}
	require.NoError(t, runsRepo.Create(ctx, run))
	require.NoError(t, runsRepo.RecordDate(ctx, run.ID, testDate, results.DateStatusSuccess, ""))

	rec, body := doGet(t, router, "/api/batch/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["runs"].([]interface{}), 1)

	rec, body = doGet(t, router, "/api/batch/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, run.ID, body["run"].(map[string]interface{})["id"])
	require.Len(t, body["dates"].([]interface{}), 1)

	rec, _ = doGet(t, router, "/api/batch/runs/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doGet(t, router, "/api/batch/runs?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
