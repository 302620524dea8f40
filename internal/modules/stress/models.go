// Package stress propagates scenario factor shocks through measured
// exposures into portfolio P&L estimates.
package stress

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
)

// Scenario is one named factor-shock vector. Shocks are fractional moves of
// the factor proxy (-0.20 means the proxy drops 20%).
type Scenario struct {
	ID     string
	Name   string
	Shocks map[factors.FactorID]float64
}

// Schema is the scenario slice of the analytics database DDL with default
// seed rows. Shock vectors are stored as JSON keyed by factor name.
const Schema = `
CREATE TABLE IF NOT EXISTS stress_scenarios (
	id     TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	shocks TEXT NOT NULL
);

INSERT OR IGNORE INTO stress_scenarios (id, name, shocks) VALUES
	('market_down_10',  'Market -10%',        '{"market": -0.10}'),
	('market_crash_35', 'Market Crash -35%',  '{"market": -0.35, "low_vol": -0.20}'),
	('rates_up_100bp',  'Rates +100bp',       '{"interest_rate": -0.08}'),
	('value_rotation',  'Value Rotation',     '{"value": 0.05, "growth": -0.05}'),
	('risk_off',        'Risk Off',           '{"market": -0.20, "size": -0.25, "momentum": -0.15}');
`

// LoadScenarios reads the seeded scenarios and resolves shock keys to factor
// identifiers. Unknown factor names inside a shock vector are dropped with a
// warning; the scenario still loads with its remaining shocks.
func LoadScenarios(ctx context.Context, db *sql.DB, log zerolog.Logger) ([]Scenario, error) {
	slog := log.With().Str("component", "scenario_loader").Logger()

	rows, err := db.QueryContext(ctx, `SELECT id, name, shocks FROM stress_scenarios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load stress scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []Scenario
	for rows.Next() {
		var id, name, raw string
		if err := rows.Scan(&id, &name, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}

		var byName map[string]float64
		if err := json.Unmarshal([]byte(raw), &byName); err != nil {
			slog.Warn().Str("scenario", id).Err(err).Msg("Unparseable shock vector, skipping scenario")
			continue
		}

		shocks := make(map[factors.FactorID]float64, len(byName))
		for name, shock := range byName {
			fid, ok := factors.ParseFactorID(name)
			if !ok {
				slog.Warn().Str("scenario", id).Str("factor", name).Msg("Unknown factor in shock vector, dropping shock")
				continue
			}
			shocks[fid] = shock
		}
		if len(shocks) == 0 {
			slog.Warn().Str("scenario", id).Msg("Scenario has no usable shocks, skipping")
			continue
		}

		scenarios = append(scenarios, Scenario{ID: id, Name: name, Shocks: shocks})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scenarios: %w", err)
	}

	slog.Info().Int("scenarios", len(scenarios)).Msg("Stress scenarios loaded")
	return scenarios, nil
}
