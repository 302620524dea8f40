// Package batch drives the phased analytics pipeline: plan missing dates,
// collect prices for all of them, load the cache once, then run every
// engine per date and portfolio with cache-aware skipping.
package batch

import (
	"time"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/pricecache"
)

// RunRequest is the inbound contract for one orchestrator invocation
type RunRequest struct {
	TargetDate   string  `json:"target_date,omitempty"` // defaults to the previous trading day
	LookbackDays int     `json:"lookback_days,omitempty"`
	PortfolioIDs []int64 `json:"portfolio_ids,omitempty"` // empty means all active
	Force        bool    `json:"force_recalculate,omitempty"`
	TriggeredBy  string  `json:"-"`
}

// RunContext carries one run's identity and settings through every phase.
// It is an explicit value, never ambient state, which keeps per-portfolio
// work safe to parallelize.
type RunContext struct {
	RunID        string
	TargetDate   string
	LookbackDays int
	PortfolioIDs []int64
	Force        bool
	Cache        *pricecache.Cache
}

// DateReport is one calculation date's outcome
type DateReport struct {
	Date          string `json:"date"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	JobsComputed  int    `json:"jobs_computed"`
	JobsSkipped   int    `json:"jobs_skipped"`
	JobsFailed    int    `json:"jobs_failed"`
	PricesStored  int    `json:"prices_stored"`
	PricesMissing int    `json:"prices_missing"`
}

// ErrorDetail aggregates one error kind for the report
type ErrorDetail struct {
	Count   int      `json:"count"`
	Samples []string `json:"samples"`
}

// RunReport is the aggregate outcome of one run. It distinguishes "nothing
// to do" from "ran and failed" from "ran and succeeded"; repeated
// invocations are a normal operating mode.
type RunReport struct {
	RunID          string                  `json:"run_id"`
	Status         string                  `json:"status"`
	TargetDate     string                  `json:"target_date"`
	Dates          []DateReport            `json:"dates"`
	Attempted      int                     `json:"attempted"`
	Succeeded      int                     `json:"succeeded"`
	Partial        int                     `json:"partial"`
	Failed         int                     `json:"failed"`
	SkippedCached  int                     `json:"skipped_cached"`
	PhaseDurations map[string]float64      `json:"phase_durations_seconds"`
	Errors         map[string]*ErrorDetail `json:"errors,omitempty"`
	CacheStats     pricecache.Stats        `json:"cache_stats"`
	StartedAt      time.Time               `json:"started_at"`
	FinishedAt     time.Time               `json:"finished_at"`
}

const errorSampleLimit = 3

func (r *RunReport) recordError(kind, message string) {
	if r.Errors == nil {
		r.Errors = make(map[string]*ErrorDetail)
	}
	detail, ok := r.Errors[kind]
	if !ok {
		detail = &ErrorDetail{}
		r.Errors[kind] = detail
	}
	detail.Count++
	if len(detail.Samples) < errorSampleLimit {
		detail.Samples = append(detail.Samples, message)
	}
}
