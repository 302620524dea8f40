// Package results is the durable store for computed risk metrics and batch
// run bookkeeping on analytics.db. Writes are upserts keyed by entity,
// calculation date, and metric kind; the orchestrator decides whether to
// skip or overwrite.
package results

// MetricKind names one engine's output family for cache-aware skip checks
type MetricKind string

const (
	KindFactorExposures MetricKind = "factor_exposures"
	KindMarketBeta      MetricKind = "market_beta"
	KindRateBeta        MetricKind = "interest_rate_beta"
	KindCorrelation     MetricKind = "correlation"
	KindStress          MetricKind = "stress"
	KindVolatility      MetricKind = "volatility"
)

// AllMetricKinds is the full analytics surface of one portfolio-date
var AllMetricKinds = []MetricKind{
	KindFactorExposures,
	KindMarketBeta,
	KindRateBeta,
	KindCorrelation,
	KindStress,
	KindVolatility,
}

// MatrixBlob is the msgpack-encoded form of a correlation matrix. Symbols
// fix the row/column order; NaN entries mark flagged pairs.
type MatrixBlob struct {
	Symbols []string    `msgpack:"symbols"`
	Matrix  [][]float64 `msgpack:"matrix"`
}

// ExposureRow is one persisted factor beta
type ExposureRow struct {
	EntityType   string  `json:"entity_type"`
	Symbol       string  `json:"symbol,omitempty"`
	Factor       string  `json:"factor"`
	Beta         float64 `json:"beta"`
	RSquared     float64 `json:"r_squared"`
	ResidualVol  float64 `json:"residual_vol"`
	Observations int     `json:"observations"`
	Status       string  `json:"status"`
}

// SpreadRow is one persisted spread-pair beta
type SpreadRow struct {
	EntityType   string  `json:"entity_type"`
	Symbol       string  `json:"symbol,omitempty"`
	Factor       string  `json:"factor"`
	Beta         float64 `json:"beta"`
	RSquared     float64 `json:"r_squared"`
	Observations int     `json:"observations"`
	Status       string  `json:"status"`
}

// BetaRow is one persisted dual-window beta
type BetaRow struct {
	Factor       string  `json:"factor"`
	RecentBeta   float64 `json:"recent_beta"`
	RecentR2     float64 `json:"recent_r2"`
	BaselineBeta float64 `json:"baseline_beta"`
	BaselineR2   float64 `json:"baseline_r2"`
	RegimeShift  bool    `json:"regime_shift"`
	Observations int     `json:"observations"`
	Status       string  `json:"status"`
}

// Schema is the results slice of the analytics database DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS factor_exposures (
	portfolio_id     INTEGER NOT NULL,
	entity_type      TEXT NOT NULL,
	symbol           TEXT NOT NULL DEFAULT '',
	calculation_date TEXT NOT NULL,
	factor           TEXT NOT NULL,
	beta             REAL NOT NULL,
	r_squared        REAL NOT NULL,
	residual_vol     REAL NOT NULL,
	observations     INTEGER NOT NULL,
	status           TEXT NOT NULL,
	created_at       TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (portfolio_id, entity_type, symbol, calculation_date, factor)
);
CREATE INDEX IF NOT EXISTS idx_factor_exposures_date ON factor_exposures(calculation_date);

CREATE TABLE IF NOT EXISTS spread_exposures (
	portfolio_id     INTEGER NOT NULL,
	entity_type      TEXT NOT NULL,
	symbol           TEXT NOT NULL DEFAULT '',
	calculation_date TEXT NOT NULL,
	factor           TEXT NOT NULL,
	beta             REAL NOT NULL,
	r_squared        REAL NOT NULL,
	observations     INTEGER NOT NULL,
	status           TEXT NOT NULL,
	PRIMARY KEY (portfolio_id, entity_type, symbol, calculation_date, factor)
);

CREATE TABLE IF NOT EXISTS beta_results (
	portfolio_id     INTEGER NOT NULL,
	calculation_date TEXT NOT NULL,
	factor           TEXT NOT NULL,
	recent_beta      REAL NOT NULL,
	recent_r2        REAL NOT NULL,
	baseline_beta    REAL NOT NULL,
	baseline_r2      REAL NOT NULL,
	regime_shift     INTEGER NOT NULL,
	observations     INTEGER NOT NULL,
	status           TEXT NOT NULL,
	PRIMARY KEY (portfolio_id, calculation_date, factor)
);

CREATE TABLE IF NOT EXISTS correlation_results (
	portfolio_id        INTEGER NOT NULL,
	calculation_date    TEXT NOT NULL,
	matrix              BLOB,
	clusters            TEXT NOT NULL DEFAULT '[]',
	flagged_pairs       TEXT NOT NULL DEFAULT '[]',
	top_pairs           TEXT NOT NULL DEFAULT '[]',
	hhi                 REAL NOT NULL,
	effective_positions REAL NOT NULL,
	avg_correlation     REAL NOT NULL,
	status              TEXT NOT NULL,
	PRIMARY KEY (portfolio_id, calculation_date)
);

CREATE TABLE IF NOT EXISTS stress_results (
	portfolio_id       INTEGER NOT NULL,
	scenario_id        TEXT NOT NULL,
	calculation_date   TEXT NOT NULL,
	direct_pnl         REAL NOT NULL,
	correlated_pnl     REAL NOT NULL,
	correlation_effect REAL NOT NULL,
	clipped            INTEGER NOT NULL,
	missing_factors    TEXT NOT NULL DEFAULT '[]',
	status             TEXT NOT NULL,
	PRIMARY KEY (portfolio_id, scenario_id, calculation_date)
);

CREATE TABLE IF NOT EXISTS volatility_forecasts (
	portfolio_id     INTEGER NOT NULL,
	calculation_date TEXT NOT NULL,
	annualized       REAL NOT NULL,
	horizon_vol      REAL NOT NULL,
	horizon          INTEGER NOT NULL,
	method           TEXT NOT NULL,
	r_squared        REAL NOT NULL,
	observations     INTEGER NOT NULL,
	weight_source    TEXT NOT NULL,
	status           TEXT NOT NULL,
	PRIMARY KEY (portfolio_id, calculation_date)
);

CREATE TABLE IF NOT EXISTS batch_runs (
	id                TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	target_date       TEXT NOT NULL,
	lookback_days     INTEGER NOT NULL,
	force_recalculate INTEGER NOT NULL,
	triggered_by      TEXT NOT NULL,
	started_at        TEXT NOT NULL,
	completed_at      TEXT,
	report            TEXT
);

CREATE TABLE IF NOT EXISTS batch_run_dates (
	run_id TEXT NOT NULL REFERENCES batch_runs(id),
	date   TEXT NOT NULL,
	status TEXT NOT NULL,
	error  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, date)
);
CREATE INDEX IF NOT EXISTS idx_batch_run_dates_date ON batch_run_dates(date, status);
`
