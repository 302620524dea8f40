// Package factors defines the closed factor universe, its seeded proxy
// symbols, and the regression engines that measure exposure to it.
package factors

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// FactorID identifies one factor in the closed universe. Seed rows are
// resolved to these identifiers once at startup; engines never look factors
// up by free-text name.
type FactorID string

const (
	FactorMarket       FactorID = "market"
	FactorValue        FactorID = "value"
	FactorGrowth       FactorID = "growth"
	FactorMomentum     FactorID = "momentum"
	FactorQuality      FactorID = "quality"
	FactorSize         FactorID = "size"
	FactorLowVol       FactorID = "low_vol"
	FactorInterestRate FactorID = "interest_rate"
)

// AllFactorIDs is the canonical factor ordering used for beta vectors
var AllFactorIDs = []FactorID{
	FactorMarket,
	FactorValue,
	FactorGrowth,
	FactorMomentum,
	FactorQuality,
	FactorSize,
	FactorLowVol,
	FactorInterestRate,
}

// ParseFactorID resolves a seed-table name to a FactorID
func ParseFactorID(name string) (FactorID, bool) {
	id := FactorID(name)
	for _, known := range AllFactorIDs {
		if id == known {
			return id, true
		}
	}
	return "", false
}

// SpreadPair is a tradeable long/short ETF pair standing in for a style
// factor; spread returns are long minus short daily returns.
type SpreadPair struct {
	Factor FactorID
	Long   string
	Short  string
}

// Schema is the factor slice of the analytics database DDL, including the
// default seed rows. INSERT OR IGNORE keeps operator edits intact across
// restarts.
const Schema = `
CREATE TABLE IF NOT EXISTS factor_definitions (
	name         TEXT PRIMARY KEY,
	proxy_symbol TEXT NOT NULL,
	display_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS spread_pairs (
	factor       TEXT PRIMARY KEY,
	long_symbol  TEXT NOT NULL,
	short_symbol TEXT NOT NULL
);

INSERT OR IGNORE INTO factor_definitions (name, proxy_symbol, display_name) VALUES
	('market',        'SPY',  'Broad Market'),
	('value',         'VTV',  'Value'),
	('growth',        'VUG',  'Growth'),
	('momentum',      'MTUM', 'Momentum'),
	('quality',       'QUAL', 'Quality'),
	('size',          'IWM',  'Size'),
	('low_vol',       'USMV', 'Low Volatility'),
	('interest_rate', 'TLT',  'Interest Rate');

INSERT OR IGNORE INTO spread_pairs (factor, long_symbol, short_symbol) VALUES
	('value',    'VTV',  'VUG'),
	('growth',   'VUG',  'VTV'),
	('momentum', 'MTUM', 'SPY'),
	('quality',  'QUAL', 'SPY'),
	('size',     'IWM',  'SPY'),
	('low_vol',  'USMV', 'SPY');
`

// Registry holds the resolved factor universe for one process lifetime
type Registry struct {
	proxies map[FactorID]string
	order   []FactorID
	spreads []SpreadPair
	log     zerolog.Logger
}

// LoadRegistry reads factor_definitions and spread_pairs from analytics.db
// and resolves every name to a FactorID. Rows with unknown names are logged
// and dropped; they must never crash startup or surface later as silent
// zero-beta lookups.
func LoadRegistry(ctx context.Context, db *sql.DB, log zerolog.Logger) (*Registry, error) {
	r := &Registry{
		proxies: make(map[FactorID]string),
		log:     log.With().Str("component", "factor_registry").Logger(),
	}

	rows, err := db.QueryContext(ctx, `SELECT name, proxy_symbol FROM factor_definitions`)
	if err != nil {
		return nil, fmt.Errorf("failed to load factor definitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, proxy string
		if err := rows.Scan(&name, &proxy); err != nil {
			return nil, fmt.Errorf("failed to scan factor definition: %w", err)
		}
		id, ok := ParseFactorID(name)
		if !ok {
			r.log.Warn().Str("name", name).Msg("Unknown factor name in seed data, skipping")
			continue
		}
		r.proxies[id] = proxy
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating factor definitions: %w", err)
	}

	// Canonical ordering over whatever subset was seeded
	for _, id := range AllFactorIDs {
		if _, ok := r.proxies[id]; ok {
			r.order = append(r.order, id)
		}
	}
	if len(r.order) == 0 {
		return nil, fmt.Errorf("no usable factor definitions seeded")
	}

	pairRows, err := db.QueryContext(ctx, `SELECT factor, long_symbol, short_symbol FROM spread_pairs`)
	if err != nil {
		return nil, fmt.Errorf("failed to load spread pairs: %w", err)
	}
	defer pairRows.Close()

	for pairRows.Next() {
		var name, long, short string
		if err := pairRows.Scan(&name, &long, &short); err != nil {
			return nil, fmt.Errorf("failed to scan spread pair: %w", err)
		}
		id, ok := ParseFactorID(name)
		if !ok {
			r.log.Warn().Str("name", name).Msg("Unknown factor name in spread pairs, skipping")
			continue
		}
		r.spreads = append(r.spreads, SpreadPair{Factor: id, Long: long, Short: short})
	}
	if err := pairRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spread pairs: %w", err)
	}

	r.log.Info().
		Int("factors", len(r.order)).
		Int("spread_pairs", len(r.spreads)).
		Msg("Factor registry loaded")

	return r, nil
}

// Proxy returns the ETF proxy symbol for a factor
func (r *Registry) Proxy(id FactorID) (string, bool) {
	proxy, ok := r.proxies[id]
	return proxy, ok
}

// Factors returns the seeded factors in canonical order
func (r *Registry) Factors() []FactorID {
	return r.order
}

// Spreads returns the seeded long/short pairs
func (r *Registry) Spreads() []SpreadPair {
	return r.spreads
}

// Symbols returns every proxy and spread symbol, deduplicated, for the
// cache load symbol set.
func (r *Registry) Symbols() []string {
	seen := make(map[string]bool)
	var symbols []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	for _, id := range r.order {
		add(r.proxies[id])
	}
	for _, p := range r.spreads {
		add(p.Long)
		add(p.Short)
	}
	return symbols
}
