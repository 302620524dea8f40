package factors

import (
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/pricecache"
)

// SeriesBuilder derives daily return series from the price cache. All
// engines consume returns through it; none read the database directly.
type SeriesBuilder struct {
	cache *pricecache.Cache
}

// NewSeriesBuilder creates a builder over a loaded cache
func NewSeriesBuilder(cache *pricecache.Cache) *SeriesBuilder {
	return &SeriesBuilder{cache: cache}
}

// Returns builds a date-keyed daily return series for one symbol over the
// given trading dates (oldest first). A return exists for a date only when
// the cache holds closes for both that date and the previous trading date in
// the list; gaps produce no entry, never a zero.
func (b *SeriesBuilder) Returns(symbol string, dates []string) map[string]float64 {
	returns := make(map[string]float64)
	for i := 1; i < len(dates); i++ {
		prev, okPrev := b.cache.Get(symbol, dates[i-1])
		curr, okCurr := b.cache.Get(symbol, dates[i])
		if okPrev && okCurr && prev != 0 {
			returns[dates[i]] = (curr - prev) / prev
		}
	}
	return returns
}

// PortfolioReturns builds a weighted daily return series for a portfolio.
// On each date the weighted sum runs over positions that have a return for
// that date, renormalized by their combined weight, so a single gappy symbol
// does not zero out the whole portfolio's day.
func (b *SeriesBuilder) PortfolioReturns(weights portfolio.WeightSet, dates []string) map[string]float64 {
	series := make([]map[string]float64, len(weights.Weights))
	for i, w := range weights.Weights {
		series[i] = b.Returns(w.Symbol, dates)
	}

	returns := make(map[string]float64)
	for _, d := range dates {
		var sum, coverage float64
		for i, w := range weights.Weights {
			if r, ok := series[i][d]; ok {
				sum += w.Weight * r
				coverage += w.Weight
			}
		}
		if coverage > 0 {
			returns[d] = sum / coverage
		}
	}
	return returns
}

// SpreadReturns builds long-minus-short daily returns for an ETF pair
func (b *SeriesBuilder) SpreadReturns(pair SpreadPair, dates []string) map[string]float64 {
	long := b.Returns(pair.Long, dates)
	short := b.Returns(pair.Short, dates)

	spread := make(map[string]float64)
	for d, l := range long {
		if s, ok := short[d]; ok {
			spread[d] = l - s
		}
	}
	return spread
}

// AlignDates returns the dates (in input order) present in every series
func AlignDates(dates []string, series ...map[string]float64) []string {
	var aligned []string
	for _, d := range dates {
		ok := true
		for _, s := range series {
			if _, present := s[d]; !present {
				ok = false
				break
			}
		}
		if ok {
			aligned = append(aligned, d)
		}
	}
	return aligned
}

// Sample extracts the values of a series over the given dates, in order.
// Callers must pass dates already aligned to the series.
func Sample(series map[string]float64, dates []string) []float64 {
	out := make([]float64, 0, len(dates))
	for _, d := range dates {
		if v, ok := series[d]; ok {
			out = append(out, v)
		}
	}
	return out
}
