// Package pricecache holds the in-memory price snapshot used by the
// calculation engines. The cache is bulk-loaded once per batch run and is
// read-only for the rest of the run; engines never touch the database.
package pricecache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/marketdata"
)

// RangeReader is the single read path the cache uses to fill itself
type RangeReader interface {
	GetRange(ctx context.Context, symbols []string, startDate, endDate string) ([]marketdata.PricePoint, error)
}

// Cache maps (symbol, date) to a closing price. Load replaces the full
// contents; Get is a pure lookup with hit/miss accounting. After Load returns
// the cache is safe for concurrent readers because nothing mutates the maps.
type Cache struct {
	repo RangeReader
	log  zerolog.Logger

	prices    map[string]map[string]float64 // symbol -> date -> close
	startDate string
	endDate   string
	loaded    bool

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache effectiveness for the run report
type Stats struct {
	Symbols   int     `json:"symbols"`
	Prices    int     `json:"prices"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
}

// New creates an empty cache over the given price reader
func New(repo RangeReader, log zerolog.Logger) *Cache {
	return &Cache{
		repo: repo,
		log:  log.With().Str("component", "price_cache").Logger(),
	}
}

// Load fills the cache with every stored price for the given symbols within
// [startDate, endDate] in one bulk read. Any previous contents, range and
// counters are discarded, never merged. An empty result is valid; engines
// will degrade per symbol.
func (c *Cache) Load(ctx context.Context, symbols []string, startDate, endDate string) error {
	points, err := c.repo.GetRange(ctx, symbols, startDate, endDate)
	if err != nil {
		return fmt.Errorf("cache load failed: %w", err)
	}

	prices := make(map[string]map[string]float64)
	for _, p := range points {
		byDate, ok := prices[p.Symbol]
		if !ok {
			byDate = make(map[string]float64)
			prices[p.Symbol] = byDate
		}
		byDate[p.Date] = p.Close
	}

	c.prices = prices
	c.startDate = startDate
	c.endDate = endDate
	c.loaded = true
	c.hits.Store(0)
	c.misses.Store(0)

	c.log.Info().
		Str("start", startDate).
		Str("end", endDate).
		Int("symbols", len(prices)).
		Int("prices", len(points)).
		Msg("Price cache loaded")

	return nil
}

// Get returns the close for symbol on date. A date outside the loaded range,
// an unknown symbol, or a non-trading day all count as misses; the caller
// must handle absence, the cache never fabricates a price.
func (c *Cache) Get(symbol, date string) (float64, bool) {
	if byDate, ok := c.prices[symbol]; ok {
		if close, ok := byDate[date]; ok {
			c.hits.Add(1)
			return close, true
		}
	}
	c.misses.Add(1)
	return 0, false
}

// Closes returns the closes present for symbol on the given dates, oldest
// first in the order supplied, skipping missing dates.
func (c *Cache) Closes(symbol string, dates []string) []float64 {
	closes := make([]float64, 0, len(dates))
	for _, d := range dates {
		if close, ok := c.Get(symbol, d); ok {
			closes = append(closes, close)
		}
	}
	return closes
}

// Loaded reports whether Load has completed at least once
func (c *Cache) Loaded() bool {
	return c.loaded
}

// Range returns the date range of the current contents
func (c *Cache) Range() (string, string) {
	return c.startDate, c.endDate
}

// Stats returns hit/miss counters for the current contents
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	total := 0
	for _, byDate := range c.prices {
		total += len(byDate)
	}

	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	return Stats{
		Symbols:   len(c.prices),
		Prices:    total,
		StartDate: c.startDate,
		EndDate:   c.endDate,
		Hits:      hits,
		Misses:    misses,
		HitRate:   rate,
	}
}
