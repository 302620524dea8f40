package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/batch"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/marketdata"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/results"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// BatchHandlers exposes batch run control and history
type BatchHandlers struct {
	orchestrator *batch.Orchestrator
	runs         *results.BatchRunRepository
	log          zerolog.Logger
}

// NewBatchHandlers creates batch handlers
func NewBatchHandlers(orchestrator *batch.Orchestrator, runs *results.BatchRunRepository, log zerolog.Logger) *BatchHandlers {
	return &BatchHandlers{
		orchestrator: orchestrator,
		runs:         runs,
		log:          log.With().Str("component", "batch_handlers").Logger(),
	}
}

// HandleRun triggers a batch run and blocks until it finishes.
// POST /api/batch/run
func (h *BatchHandlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req batch.RunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	req.TriggeredBy = "api"

	report, err := h.orchestrator.Run(r.Context(), req)
	if err != nil && report == nil {
		h.log.Error().Err(err).Msg("Batch run rejected")
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	status := http.StatusOK
	if report.Status == results.RunStatusFailed {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

// HandleRecentRuns returns the most recent runs.
// GET /api/batch/runs?limit=
func (h *BatchHandlers) HandleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := h.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// HandleGetRun returns one run with its per-date outcomes.
// GET /api/batch/runs/{id}
func (h *BatchHandlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, dates, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":   run,
		"dates": dates,
	})
}

// RiskHandlers serves persisted risk results per portfolio and date
type RiskHandlers struct {
	portfolios *portfolio.Repository
	results    *results.Repository
	calendar   *marketdata.Calendar
	log        zerolog.Logger
}

// NewRiskHandlers creates risk handlers
func NewRiskHandlers(portfolios *portfolio.Repository, res *results.Repository, cal *marketdata.Calendar, log zerolog.Logger) *RiskHandlers {
	return &RiskHandlers{
		portfolios: portfolios,
		results:    res,
		calendar:   cal,
		log:        log.With().Str("component", "risk_handlers").Logger(),
	}
}

// HandleListPortfolios returns all active portfolios.
// GET /api/portfolios
func (h *RiskHandlers) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.portfolios.GetActive(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list portfolios")
		writeError(w, http.StatusInternalServerError, "failed to list portfolios")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"portfolios": portfolios})
}

// resolveRequest validates the portfolio and resolves the calculation date.
// A missing date defaults to the most recent trading day.
func (h *RiskHandlers) resolveRequest(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid portfolio id")
		return 0, "", false
	}

	found, err := h.portfolios.GetByIDs(r.Context(), []int64{id})
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", id).Msg("Failed to load portfolio")
		writeError(w, http.StatusInternalServerError, "failed to load portfolio")
		return 0, "", false
	}
	if len(found) == 0 {
		writeError(w, http.StatusNotFound, "portfolio not found")
		return 0, "", false
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		now := time.Now()
		if h.calendar.IsTradingDay(now) {
			date = now.Format(marketdata.DateFormat)
		} else {
			date = h.calendar.PreviousTradingDay(now).Format(marketdata.DateFormat)
		}
	} else if _, err := time.Parse(marketdata.DateFormat, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return 0, "", false
	}

	return id, date, true
}

// HandleExposures returns factor exposures, spread betas, and dual-window
// betas for one portfolio-date.
// GET /api/portfolios/{id}/risk/exposures?date=
func (h *RiskHandlers) HandleExposures(w http.ResponseWriter, r *http.Request) {
	id, date, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}

	exposures, err := h.results.GetExposures(r.Context(), id, date)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load exposures")
		writeError(w, http.StatusInternalServerError, "failed to load exposures")
		return
	}
	spreads, err := h.results.GetSpreads(r.Context(), id, date)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load spread betas")
		writeError(w, http.StatusInternalServerError, "failed to load spread betas")
		return
	}
	betas, err := h.results.GetBetas(r.Context(), id, date)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load betas")
		writeError(w, http.StatusInternalServerError, "failed to load betas")
		return
	}

	if len(exposures) == 0 && len(spreads) == 0 && len(betas) == 0 {
		writeError(w, http.StatusNotFound, "no results for this portfolio and date")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id":     id,
		"calculation_date": date,
		"exposures":        exposures,
		"spread_betas":     spreads,
		"betas":            betas,
	})
}

// HandleCorrelation returns the correlation analysis for one portfolio-date.
// GET /api/portfolios/{id}/risk/correlation?date=
func (h *RiskHandlers) HandleCorrelation(w http.ResponseWriter, r *http.Request) {
	id, date, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}

	record, err := h.results.GetCorrelation(r.Context(), id, date)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load correlation")
		writeError(w, http.StatusInternalServerError, "failed to load correlation")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "no results for this portfolio and date")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id":     id,
		"calculation_date": date,
		"correlation":      record,
	})
}

// HandleStress returns all scenario results for one portfolio-date.
// GET /api/portfolios/{id}/risk/stress?date=
func (h *RiskHandlers) HandleStress(w http.ResponseWriter, r *http.Request) {
	id, date, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}

	records, err := h.results.GetStress(r.Context(), id, date)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load stress results")
		writeError(w, http.StatusInternalServerError, "failed to load stress results")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "no results for this portfolio and date")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id":     id,
		"calculation_date": date,
		"scenarios":        records,
	})
}

// HandleVolatility returns the volatility forecast for one portfolio-date.
// GET /api/portfolios/{id}/risk/volatility?date=
func (h *RiskHandlers) HandleVolatility(w http.ResponseWriter, r *http.Request) {
	id, date, ok := h.resolveRequest(w, r)
	if !ok {
		return
	}

	record, err := h.results.GetVolatility(r.Context(), id, date)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load volatility forecast")
		writeError(w, http.StatusInternalServerError, "failed to load volatility forecast")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "no results for this portfolio and date")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id":     id,
		"calculation_date": date,
		"forecast":         record,
	})
}
