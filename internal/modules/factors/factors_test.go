package factors

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFactorID(t *testing.T) {
	id, ok := ParseFactorID("momentum")
	require.True(t, ok)
	assert.Equal(t, FactorMomentum, id)

	_, ok = ParseFactorID("carry")
	assert.False(t, ok)
}

func TestLoadRegistrySeeds(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	registry, err := LoadRegistry(context.Background(), db, zerolog.Nop())
	require.NoError(t, err)

	assert.Len(t, registry.Factors(), 8)
	assert.Equal(t, FactorMarket, registry.Factors()[0], "canonical ordering starts with market")

	proxy, ok := registry.Proxy(FactorInterestRate)
	require.True(t, ok)
	assert.Equal(t, "TLT", proxy)

	assert.Len(t, registry.Spreads(), 6)

	symbols := registry.Symbols()
	assert.Contains(t, symbols, "SPY")
	assert.Contains(t, symbols, "TLT")
	// Deduplicated across proxies and spread legs
	count := 0
	for _, s := range symbols {
		if s == "SPY" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestLoadRegistryUnknownNameSkipped(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE factor_definitions (name TEXT PRIMARY KEY, proxy_symbol TEXT NOT NULL, display_name TEXT NOT NULL);
		CREATE TABLE spread_pairs (factor TEXT PRIMARY KEY, long_symbol TEXT NOT NULL, short_symbol TEXT NOT NULL);
		INSERT INTO factor_definitions VALUES ('market', 'SPY', 'Broad Market');
		INSERT INTO factor_definitions VALUES ('carry', 'XYZ', 'Not A Factor');
		INSERT INTO spread_pairs VALUES ('carry', 'XYZ', 'SPY');
	`)
	require.NoError(t, err)

	registry, err := LoadRegistry(context.Background(), db, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []FactorID{FactorMarket}, registry.Factors())
	assert.Empty(t, registry.Spreads())
}

func TestLoadRegistryEmptyIsError(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE factor_definitions (name TEXT PRIMARY KEY, proxy_symbol TEXT NOT NULL, display_name TEXT NOT NULL);
		CREATE TABLE spread_pairs (factor TEXT PRIMARY KEY, long_symbol TEXT NOT NULL, short_symbol TEXT NOT NULL);
	`)
	require.NoError(t, err)

	_, err = LoadRegistry(context.Background(), db, zerolog.Nop())
	assert.Error(t, err)
}
