package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	closes map[string]float64
	err    error
}

func (s *stubProvider) DailyCloses(_ context.Context, _ []string, _ string) (map[string]float64, error) {
	return s.closes, s.err
}

func TestCollectDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPriceRepository(db, zerolog.Nop())
	provider := &stubProvider{closes: map[string]float64{"AAPL": 185.0, "SPY": 470.0}}
	collector := NewCollector(provider, repo, zerolog.Nop())

	result, err := collector.CollectDate(context.Background(), "2025-01-02", []string{"AAPL", "SPY", "MSFT"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 2, result.Received)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, []string{"MSFT"}, result.Missing)

	close, err := repo.GetClose(context.Background(), "AAPL", "2025-01-02")
	require.NoError(t, err)
	require.NotNil(t, close)
	assert.Equal(t, 185.0, *close)
}

func TestCollectDateIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPriceRepository(db, zerolog.Nop())
	provider := &stubProvider{closes: map[string]float64{"AAPL": 185.0}}
	collector := NewCollector(provider, repo, zerolog.Nop())

	_, err := collector.CollectDate(context.Background(), "2025-01-02", []string{"AAPL"})
	require.NoError(t, err)

	// Re-collecting the same date inserts nothing and changes nothing
	provider.closes = map[string]float64{"AAPL": 999.0}
	result, err := collector.CollectDate(context.Background(), "2025-01-02", []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)

	close, err := repo.GetClose(context.Background(), "AAPL", "2025-01-02")
	require.NoError(t, err)
	assert.Equal(t, 185.0, *close)
}

func TestCollectDateProviderError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPriceRepository(db, zerolog.Nop())
	provider := &stubProvider{err: errors.New("feed unavailable")}
	collector := NewCollector(provider, repo, zerolog.Nop())

	_, err := collector.CollectDate(context.Background(), "2025-01-02", []string{"AAPL"})
	assert.Error(t, err)
}
