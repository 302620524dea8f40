package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/correlation"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/stress"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/volatility"
)

// Repository persists engine results on analytics.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new results repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "results").Logger(),
	}
}

// Has reports whether a metric kind already has a persisted result for the
// portfolio and date. This is the cache-aware skip check of the pipeline.
func (r *Repository) Has(ctx context.Context, portfolioID int64, date string, kind MetricKind) (bool, error) {
	var query string
	switch kind {
	case KindFactorExposures:
		query = `SELECT COUNT(*) FROM factor_exposures WHERE portfolio_id = ? AND calculation_date = ?`
	case KindMarketBeta:
		query = `SELECT COUNT(*) FROM beta_results WHERE portfolio_id = ? AND calculation_date = ? AND factor = 'market'`
	case KindRateBeta:
		query = `SELECT COUNT(*) FROM beta_results WHERE portfolio_id = ? AND calculation_date = ? AND factor = 'interest_rate'`
	case KindCorrelation:
		query = `SELECT COUNT(*) FROM correlation_results WHERE portfolio_id = ? AND calculation_date = ?`
	case KindStress:
		query = `SELECT COUNT(*) FROM stress_results WHERE portfolio_id = ? AND calculation_date = ?`
	case KindVolatility:
		query = `SELECT COUNT(*) FROM volatility_forecasts WHERE portfolio_id = ? AND calculation_date = ?`
	default:
		return false, fmt.Errorf("unknown metric kind %q", kind)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, portfolioID, date).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check existing %s: %w", kind, err)
	}
	return count > 0, nil
}

// UpsertFactorExposures writes one portfolio-date's ridge and spread betas
func (r *Repository) UpsertFactorExposures(ctx context.Context, portfolioID int64, date string, result *factors.FactorBetaResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	expStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO factor_exposures
			(portfolio_id, entity_type, symbol, calculation_date, factor, beta, r_squared, residual_vol, observations, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id, entity_type, symbol, calculation_date, factor) DO UPDATE SET
			beta = excluded.beta, r_squared = excluded.r_squared,
			residual_vol = excluded.residual_vol, observations = excluded.observations,
			status = excluded.status
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare exposure upsert: %w", err)
	}
	defer expStmt.Close()

	writeExposure := func(exp factors.FactorExposure) error {
		if exp.Status != factors.StatusOK {
			// Degraded entities persist a single marker row so skip checks
			// and the API can tell "computed, insufficient" from "never ran"
			_, err := expStmt.ExecContext(ctx, portfolioID, exp.EntityType, exp.Symbol, date, "", 0, 0, 0, exp.Observations, string(exp.Status))
			return err
		}
		for _, id := range factors.AllFactorIDs {
			beta, ok := exp.Betas[id]
			if !ok {
				continue
			}
			if _, err := expStmt.ExecContext(ctx, portfolioID, exp.EntityType, exp.Symbol, date, string(id), beta, exp.RSquared, exp.ResidualVol, exp.Observations, string(exp.Status)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := writeExposure(result.Portfolio); err != nil {
		return fmt.Errorf("failed to upsert portfolio exposure: %w", err)
	}
	for _, pos := range result.Positions {
		if err := writeExposure(pos); err != nil {
			return fmt.Errorf("failed to upsert position exposure: %w", err)
		}
	}

	spreadStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO spread_exposures
			(portfolio_id, entity_type, symbol, calculation_date, factor, beta, r_squared, observations, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id, entity_type, symbol, calculation_date, factor) DO UPDATE SET
			beta = excluded.beta, r_squared = excluded.r_squared,
			observations = excluded.observations, status = excluded.status
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare spread upsert: %w", err)
	}
	defer spreadStmt.Close()

	for _, s := range result.Spreads {
		if _, err := spreadStmt.ExecContext(ctx, portfolioID, s.EntityType, s.Symbol, date, string(s.Factor), s.Beta, s.RSquared, s.Observations, string(s.Status)); err != nil {
			return fmt.Errorf("failed to upsert spread exposure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit exposures: %w", err)
	}
	return nil
}

// UpsertBeta writes one dual-window beta result
func (r *Repository) UpsertBeta(ctx context.Context, portfolioID int64, date string, result *factors.DualWindowBeta) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO beta_results
			(portfolio_id, calculation_date, factor, recent_beta, recent_r2, baseline_beta, baseline_r2, regime_shift, observations, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id, calculation_date, factor) DO UPDATE SET
			recent_beta = excluded.recent_beta, recent_r2 = excluded.recent_r2,
			baseline_beta = excluded.baseline_beta, baseline_r2 = excluded.baseline_r2,
			regime_shift = excluded.regime_shift, observations = excluded.observations,
			status = excluded.status
	`, portfolioID, date, string(result.Factor), result.RecentBeta, result.RecentR2,
		result.BaselineBeta, result.BaselineR2, result.RegimeShift, result.Observations, string(result.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert beta result: %w", err)
	}
	return nil
}

// UpsertCorrelation writes one portfolio-date's correlation structure. The
// matrix travels as a msgpack blob; derived metrics are queryable columns.
func (r *Repository) UpsertCorrelation(ctx context.Context, portfolioID int64, date string, result *correlation.Result) error {
	var blob []byte
	if result.Matrix != nil {
		encoded, err := msgpack.Marshal(MatrixBlob{Symbols: result.Symbols, Matrix: result.Matrix})
		if err != nil {
			return fmt.Errorf("failed to encode correlation matrix: %w", err)
		}
		blob = encoded
	}

	clusters, _ := json.Marshal(result.Clusters)
	flagged, _ := json.Marshal(result.Flagged)
	topPairs, _ := json.Marshal(result.TopPairs)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO correlation_results
			(portfolio_id, calculation_date, matrix, clusters, flagged_pairs, top_pairs, hhi, effective_positions, avg_correlation, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id, calculation_date) DO UPDATE SET
			matrix = excluded.matrix, clusters = excluded.clusters,
			flagged_pairs = excluded.flagged_pairs, top_pairs = excluded.top_pairs,
			hhi = excluded.hhi, effective_positions = excluded.effective_positions,
			avg_correlation = excluded.avg_correlation, status = excluded.status
	`, portfolioID, date, blob, string(clusters), string(flagged), string(topPairs),
		result.HHI, result.EffectivePositions, result.AvgCorrelation, string(result.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert correlation result: %w", err)
	}
	return nil
}

// UpsertStress writes one scenario's result
func (r *Repository) UpsertStress(ctx context.Context, portfolioID int64, date string, result *stress.Result) error {
	missing, _ := json.Marshal(result.MissingFactors)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stress_results
			(portfolio_id, scenario_id, calculation_date, direct_pnl, correlated_pnl, correlation_effect, clipped, missing_factors, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id, scenario_id, calculation_date) DO UPDATE SET
			direct_pnl = excluded.direct_pnl, correlated_pnl = excluded.correlated_pnl,
			correlation_effect = excluded.correlation_effect, clipped = excluded.clipped,
			missing_factors = excluded.missing_factors, status = excluded.status
	`, portfolioID, result.ScenarioID, date, result.DirectPnL, result.CorrelatedPnL,
		result.CorrelationEffect, result.Clipped, string(missing), string(result.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert stress result: %w", err)
	}
	return nil
}

// UpsertVolatility writes one volatility forecast
func (r *Repository) UpsertVolatility(ctx context.Context, portfolioID int64, date string, forecast *volatility.Forecast) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO volatility_forecasts
			(portfolio_id, calculation_date, annualized, horizon_vol, horizon, method, r_squared, observations, weight_source, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (portfolio_id, calculation_date) DO UPDATE SET
			annualized = excluded.annualized, horizon_vol = excluded.horizon_vol,
			horizon = excluded.horizon, method = excluded.method,
			r_squared = excluded.r_squared, observations = excluded.observations,
			weight_source = excluded.weight_source, status = excluded.status
	`, portfolioID, date, forecast.Annualized, forecast.HorizonVol, forecast.Horizon,
		string(forecast.Method), forecast.RSquared, forecast.Observations, forecast.WeightSource, string(forecast.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert volatility forecast: %w", err)
	}
	return nil
}

// GetExposures returns persisted factor betas for one portfolio-date
func (r *Repository) GetExposures(ctx context.Context, portfolioID int64, date string) ([]ExposureRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_type, symbol, factor, beta, r_squared, residual_vol, observations, status
		FROM factor_exposures
		WHERE portfolio_id = ? AND calculation_date = ?
		ORDER BY entity_type DESC, symbol, factor
	`, portfolioID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query exposures: %w", err)
	}
	defer rows.Close()

	var out []ExposureRow
	for rows.Next() {
		var row ExposureRow
		if err := rows.Scan(&row.EntityType, &row.Symbol, &row.Factor, &row.Beta, &row.RSquared, &row.ResidualVol, &row.Observations, &row.Status); err != nil {
			return nil, fmt.Errorf("failed to scan exposure: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetSpreads returns persisted spread betas for one portfolio-date
func (r *Repository) GetSpreads(ctx context.Context, portfolioID int64, date string) ([]SpreadRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_type, symbol, factor, beta, r_squared, observations, status
		FROM spread_exposures
		WHERE portfolio_id = ? AND calculation_date = ?
		ORDER BY entity_type DESC, symbol, factor
	`, portfolioID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query spread exposures: %w", err)
	}
	defer rows.Close()

	var out []SpreadRow
	for rows.Next() {
		var row SpreadRow
		if err := rows.Scan(&row.EntityType, &row.Symbol, &row.Factor, &row.Beta, &row.RSquared, &row.Observations, &row.Status); err != nil {
			return nil, fmt.Errorf("failed to scan spread exposure: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetBetas returns the dual-window betas for one portfolio-date
func (r *Repository) GetBetas(ctx context.Context, portfolioID int64, date string) ([]BetaRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT factor, recent_beta, recent_r2, baseline_beta, baseline_r2, regime_shift, observations, status
		FROM beta_results
		WHERE portfolio_id = ? AND calculation_date = ?
		ORDER BY factor
	`, portfolioID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query beta results: %w", err)
	}
	defer rows.Close()

	var out []BetaRow
	for rows.Next() {
		var row BetaRow
		if err := rows.Scan(&row.Factor, &row.RecentBeta, &row.RecentR2, &row.BaselineBeta, &row.BaselineR2, &row.RegimeShift, &row.Observations, &row.Status); err != nil {
			return nil, fmt.Errorf("failed to scan beta result: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CorrelationRecord is the persisted correlation structure returned to the API
type CorrelationRecord struct {
	Symbols            []string                  `json:"symbols"`
	Matrix             [][]float64               `json:"matrix"`
	Clusters           [][]string                `json:"clusters"`
	Flagged            []correlation.FlaggedPair `json:"flagged_pairs"`
	TopPairs           []correlation.Pair        `json:"top_pairs"`
	HHI                float64                   `json:"hhi"`
	EffectivePositions float64                   `json:"effective_positions"`
	AvgCorrelation     float64                   `json:"avg_correlation"`
	Status             string                    `json:"status"`
}

// GetCorrelation returns the decoded correlation record, nil when absent
func (r *Repository) GetCorrelation(ctx context.Context, portfolioID int64, date string) (*CorrelationRecord, error) {
	var blob []byte
	var clusters, flagged, topPairs string
	record := &CorrelationRecord{}

	err := r.db.QueryRowContext(ctx, `
		SELECT matrix, clusters, flagged_pairs, top_pairs, hhi, effective_positions, avg_correlation, status
		FROM correlation_results
		WHERE portfolio_id = ? AND calculation_date = ?
	`, portfolioID, date).Scan(&blob, &clusters, &flagged, &topPairs,
		&record.HHI, &record.EffectivePositions, &record.AvgCorrelation, &record.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query correlation result: %w", err)
	}

	if len(blob) > 0 {
		var decoded MatrixBlob
		if err := msgpack.Unmarshal(blob, &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode correlation matrix: %w", err)
		}
		record.Symbols = decoded.Symbols
		record.Matrix = decoded.Matrix
	}
	if err := json.Unmarshal([]byte(clusters), &record.Clusters); err != nil {
		return nil, fmt.Errorf("failed to decode clusters: %w", err)
	}
	if err := json.Unmarshal([]byte(flagged), &record.Flagged); err != nil {
		return nil, fmt.Errorf("failed to decode flagged pairs: %w", err)
	}
	if err := json.Unmarshal([]byte(topPairs), &record.TopPairs); err != nil {
		return nil, fmt.Errorf("failed to decode top pairs: %w", err)
	}

	return record, nil
}

// StressRecord is one persisted scenario result
type StressRecord struct {
	ScenarioID        string   `json:"scenario_id"`
	DirectPnL         float64  `json:"direct_pnl"`
	CorrelatedPnL     float64  `json:"correlated_pnl"`
	CorrelationEffect float64  `json:"correlation_effect"`
	Clipped           bool     `json:"clipped"`
	MissingFactors    []string `json:"missing_factors"`
	Status            string   `json:"status"`
}

// GetStress returns all scenario results for one portfolio-date
func (r *Repository) GetStress(ctx context.Context, portfolioID int64, date string) ([]StressRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT scenario_id, direct_pnl, correlated_pnl, correlation_effect, clipped, missing_factors, status
		FROM stress_results
		WHERE portfolio_id = ? AND calculation_date = ?
		ORDER BY scenario_id
	`, portfolioID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query stress results: %w", err)
	}
	defer rows.Close()

	var out []StressRecord
	for rows.Next() {
		var rec StressRecord
		var missing string
		if err := rows.Scan(&rec.ScenarioID, &rec.DirectPnL, &rec.CorrelatedPnL, &rec.CorrelationEffect, &rec.Clipped, &missing, &rec.Status); err != nil {
			return nil, fmt.Errorf("failed to scan stress result: %w", err)
		}
		if err := json.Unmarshal([]byte(missing), &rec.MissingFactors); err != nil {
			return nil, fmt.Errorf("failed to decode missing factors: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// VolatilityRecord is one persisted forecast
type VolatilityRecord struct {
	Annualized   float64 `json:"annualized"`
	HorizonVol   float64 `json:"horizon_vol"`
	Horizon      int     `json:"horizon"`
	Method       string  `json:"method"`
	RSquared     float64 `json:"r_squared"`
	Observations int     `json:"observations"`
	WeightSource string  `json:"weight_source"`
	Status       string  `json:"status"`
}

// GetVolatility returns the forecast for one portfolio-date, nil when absent
func (r *Repository) GetVolatility(ctx context.Context, portfolioID int64, date string) (*VolatilityRecord, error) {
	rec := &VolatilityRecord{}
	err := r.db.QueryRowContext(ctx, `
		SELECT annualized, horizon_vol, horizon, method, r_squared, observations, weight_source, status
		FROM volatility_forecasts
		WHERE portfolio_id = ? AND calculation_date = ?
	`, portfolioID, date).Scan(&rec.Annualized, &rec.HorizonVol, &rec.Horizon, &rec.Method,
		&rec.RSquared, &rec.Observations, &rec.WeightSource, &rec.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query volatility forecast: %w", err)
	}
	return rec, nil
}

// CountWrites returns the total number of persisted result rows, used by
// tests to prove the cache-aware skip path writes nothing.
func (r *Repository) CountWrites(ctx context.Context) (int, error) {
	var total int
	for _, table := range []string{"factor_exposures", "spread_exposures", "beta_results", "correlation_results", "stress_results", "volatility_forecasts"} {
		var n int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to count %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}
