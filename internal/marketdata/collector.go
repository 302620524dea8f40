package marketdata

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Collector runs the price collection phase: for one calculation date it asks
// the quote feed for every tracked symbol's close and appends the results to
// the price store.
type Collector struct {
	provider QuoteProvider
	repo     *PriceRepository
	log      zerolog.Logger
}

// NewCollector creates a new price collector
func NewCollector(provider QuoteProvider, repo *PriceRepository, log zerolog.Logger) *Collector {
	return &Collector{
		provider: provider,
		repo:     repo,
		log:      log.With().Str("component", "price_collector").Logger(),
	}
}

// CollectResult summarizes one date's collection
type CollectResult struct {
	Date      string
	Requested int
	Received  int
	Inserted  int
	Missing   []string
}

// CollectDate fetches and stores closes for all symbols on one date. Symbols
// the feed could not price are reported in Missing; they do not fail the
// collection, downstream engines degrade per symbol instead.
func (c *Collector) CollectDate(ctx context.Context, date string, symbols []string) (*CollectResult, error) {
	closes, err := c.provider.DailyCloses(ctx, symbols, date)
	if err != nil {
		return nil, fmt.Errorf("price collection failed for %s: %w", date, err)
	}

	inserted, err := c.repo.InsertDailyCloses(ctx, date, closes)
	if err != nil {
		return nil, fmt.Errorf("failed to store closes for %s: %w", date, err)
	}

	result := &CollectResult{
		Date:      date,
		Requested: len(symbols),
		Received:  len(closes),
		Inserted:  inserted,
	}
	for _, s := range symbols {
		if _, ok := closes[normalizeSymbol(s)]; !ok {
			result.Missing = append(result.Missing, normalizeSymbol(s))
		}
	}

	if len(result.Missing) > 0 {
		c.log.Warn().
			Str("date", date).
			Strs("missing", result.Missing).
			Msg("Some symbols have no close for this date")
	}

	c.log.Info().
		Str("date", date).
		Int("requested", result.Requested).
		Int("received", result.Received).
		Int("inserted", result.Inserted).
		Msg("Price collection complete")

	return result, nil
}
