package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/marketdata"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/correlation"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/stress"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/volatility"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/pricecache"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/results"
)

// Config tunes the orchestrator
type Config struct {
	HistoryDays         int // calendar days of prices loaded behind each calculation date
	DefaultLookbackDays int
	Workers             int // parallel per-portfolio jobs within a date
}

// Deps wires the orchestrator's collaborators
type Deps struct {
	Calendar          *marketdata.Calendar
	Collector         *marketdata.Collector
	Cache             *pricecache.Cache
	Portfolios        *portfolio.Repository
	Registry          *factors.Registry
	Scenarios         []stress.Scenario
	FactorEngine      *factors.FactorBetaEngine
	MarketEngine      *factors.DualWindowBetaEngine
	RateEngine        *factors.DualWindowBetaEngine
	CorrelationEngine *correlation.Engine
	StressEngine      *stress.Engine
	VolatilityEngine  *volatility.Engine
	Results           *results.Repository
	Runs              *results.BatchRunRepository
}

// Orchestrator runs the phased batch pipeline
type Orchestrator struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger

	mu      sync.Mutex // one run at a time
	running bool
}

// NewOrchestrator creates a new batch orchestrator
func NewOrchestrator(deps Deps, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 400
	}
	if cfg.DefaultLookbackDays <= 0 {
		cfg.DefaultLookbackDays = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		log:  log.With().Str("component", "batch_orchestrator").Logger(),
	}
}

// Run executes one batch invocation: plan, collect, cache load, analytics,
// report. Per-date failures are recorded and skipped over; only structural
// failures (run bookkeeping, cache load) abort the run.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, fmt.Errorf("a batch run is already in progress")
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	started := time.Now()
	rc, err := o.newRunContext(req)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		RunID:          rc.RunID,
		TargetDate:     rc.TargetDate,
		PhaseDurations: make(map[string]float64),
		StartedAt:      started,
	}

	run := &results.BatchRun{
		ID:           rc.RunID,
		TargetDate:   rc.TargetDate,
		LookbackDays: rc.LookbackDays,
		Force:        rc.Force,
		TriggeredBy:  req.TriggeredBy,
		StartedAt:    started,
	}
	if err := o.deps.Runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record batch run: %w", err)
	}

	o.log.Info().
		Str("run_id", rc.RunID).
		Str("target_date", rc.TargetDate).
		Int("lookback_days", rc.LookbackDays).
		Bool("force", rc.Force).
		Msg("Batch run started")

	status, runErr := o.execute(ctx, rc, report)
	report.Status = status
	report.FinishedAt = time.Now()
	report.PhaseDurations["total"] = time.Since(started).Seconds()

	if err := o.deps.Runs.Complete(ctx, rc.RunID, status, report); err != nil {
		o.log.Error().Err(err).Msg("Failed to persist run report")
	}

	o.log.Info().
		Str("run_id", rc.RunID).
		Str("status", status).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped_cached", report.SkippedCached).
		Msg("Batch run finished")

	return report, runErr
}

func (o *Orchestrator) newRunContext(req RunRequest) (*RunContext, error) {
	target := req.TargetDate
	if target == "" {
		now := time.Now()
		if o.deps.Calendar.IsTradingDay(now) {
			target = now.Format(marketdata.DateFormat)
		} else {
			target = o.deps.Calendar.PreviousTradingDay(now).Format(marketdata.DateFormat)
		}
	} else if _, err := time.Parse(marketdata.DateFormat, target); err != nil {
		return nil, fmt.Errorf("invalid target date %q: %w", target, err)
	}

	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = o.cfg.DefaultLookbackDays
	}

	return &RunContext{
		RunID:        uuid.NewString(),
		TargetDate:   target,
		LookbackDays: lookback,
		PortfolioIDs: req.PortfolioIDs,
		Force:        req.Force,
		Cache:        o.deps.Cache,
	}, nil
}

// execute runs the phases and returns the terminal run status
func (o *Orchestrator) execute(ctx context.Context, rc *RunContext, report *RunReport) (string, error) {
	// Plan
	phaseStart := time.Now()
	planned, skipped, err := o.plan(ctx, rc)
	report.PhaseDurations["plan"] = time.Since(phaseStart).Seconds()
	if err != nil {
		report.recordError("plan", err.Error())
		return results.RunStatusFailed, err
	}

	report.SkippedCached = len(skipped)
	for _, d := range skipped {
		report.Dates = append(report.Dates, DateReport{Date: d, Status: results.DateStatusSkipped})
		if err := o.deps.Runs.RecordDate(ctx, rc.RunID, d, results.DateStatusSkipped, ""); err != nil {
			o.log.Error().Err(err).Str("date", d).Msg("Failed to record skipped date")
		}
	}

	if len(planned) == 0 {
		return results.RunStatusCompleted, nil
	}
	report.Attempted = len(planned)

	portfolios, err := o.loadPortfolios(ctx, rc)
	if err != nil {
		report.recordError("plan", err.Error())
		return results.RunStatusFailed, err
	}

	symbols, err := o.symbolUniverse(ctx)
	if err != nil {
		report.recordError("plan", err.Error())
		return results.RunStatusFailed, err
	}

	// Phase 1: price collection for every planned date, before any cache
	// load. Loading earlier would starve analytics of the newest closes.
	phaseStart = time.Now()
	analyticsDates := o.collectPhase(ctx, rc, planned, symbols, report)
	report.PhaseDurations["collect"] = time.Since(phaseStart).Seconds()

	if len(analyticsDates) == 0 {
		o.finishDates(ctx, rc, report)
		if report.Failed > 0 {
			return results.RunStatusFailed, nil
		}
		return results.RunStatusCompleted, nil
	}

	// Single cache load covering the union range. A structural load error
	// is fatal for the whole run.
	phaseStart = time.Now()
	if err := o.loadCache(ctx, rc, analyticsDates, symbols); err != nil {
		report.PhaseDurations["cache_load"] = time.Since(phaseStart).Seconds()
		report.recordError("cache_load", err.Error())
		o.failRemaining(ctx, rc, analyticsDates, report, "cache load failed")
		o.finishDates(ctx, rc, report)
		return results.RunStatusFailed, fmt.Errorf("cache load failed: %w", err)
	}
	report.PhaseDurations["cache_load"] = time.Since(phaseStart).Seconds()

	// Analytics phases, per date then per portfolio
	phaseStart = time.Now()
	for _, date := range analyticsDates {
		o.processDate(ctx, rc, date, portfolios, report)
	}
	report.PhaseDurations["analytics"] = time.Since(phaseStart).Seconds()

	report.CacheStats = rc.Cache.Stats()
	o.finishDates(ctx, rc, report)

	switch {
	case report.Failed == 0 && report.Partial == 0:
		return results.RunStatusCompleted, nil
	case report.Succeeded == 0 && report.Partial == 0:
		return results.RunStatusFailed, nil
	default:
		return results.RunStatusPartial, nil
	}
}

// plan computes the ordered missing dates within the lookback window.
// Dates with a prior successful run are returned separately as skipped
// unless the force flag overrides the cache-aware behavior.
func (o *Orchestrator) plan(ctx context.Context, rc *RunContext) (planned, skipped []string, err error) {
	target, err := time.Parse(marketdata.DateFormat, rc.TargetDate)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid target date: %w", err)
	}
	windowStart := target.AddDate(0, 0, -rc.LookbackDays)

	tradingDays := o.deps.Calendar.TradingDaysBetween(windowStart, target)
	if len(tradingDays) == 0 {
		return nil, nil, nil
	}

	var done map[string]bool
	if !rc.Force {
		done, err = o.deps.Runs.SucceededDates(ctx, windowStart.Format(marketdata.DateFormat))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load processed dates: %w", err)
		}
	}

	for _, day := range tradingDays {
		d := day.Format(marketdata.DateFormat)
		if done[d] {
			skipped = append(skipped, d)
		} else {
			planned = append(planned, d)
		}
	}

	o.log.Info().
		Int("planned", len(planned)).
		Int("skipped_cached", len(skipped)).
		Msg("Batch plan computed")

	return planned, skipped, nil
}

func (o *Orchestrator) loadPortfolios(ctx context.Context, rc *RunContext) ([]portfolio.Portfolio, error) {
	if len(rc.PortfolioIDs) > 0 {
		return o.deps.Portfolios.GetByIDs(ctx, rc.PortfolioIDs)
	}
	return o.deps.Portfolios.GetActive(ctx)
}

// symbolUniverse is every held symbol plus all factor proxy symbols
func (o *Orchestrator) symbolUniverse(ctx context.Context) ([]string, error) {
	held, err := o.deps.Portfolios.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load symbol universe: %w", err)
	}

	seen := make(map[string]bool, len(held))
	universe := make([]string, 0, len(held))
	for _, s := range held {
		if !seen[s] {
			seen[s] = true
			universe = append(universe, s)
		}
	}
	for _, s := range o.deps.Registry.Symbols() {
		if !seen[s] {
			seen[s] = true
			universe = append(universe, s)
		}
	}
	return universe, nil
}

// collectPhase runs Phase 1 for every planned date. A failed date is
// reported and dropped from analytics; the rest of the plan continues.
func (o *Orchestrator) collectPhase(ctx context.Context, rc *RunContext, planned, symbols []string, report *RunReport) []string {
	var analyticsDates []string
	for _, date := range planned {
		result, err := o.deps.Collector.CollectDate(ctx, date, symbols)
		if err != nil {
			o.log.Error().Err(err).Str("date", date).Msg("Price collection failed, dropping date")
			report.recordError("price_collection", err.Error())
			report.Dates = append(report.Dates, DateReport{
				Date:   date,
				Status: results.DateStatusFailed,
				Error:  err.Error(),
			})
			continue
		}
		report.Dates = append(report.Dates, DateReport{
			Date:          date,
			PricesStored:  result.Inserted,
			PricesMissing: len(result.Missing),
		})
		analyticsDates = append(analyticsDates, date)
	}
	return analyticsDates
}

func (o *Orchestrator) loadCache(ctx context.Context, rc *RunContext, dates, symbols []string) error {
	earliest, err := time.Parse(marketdata.DateFormat, dates[0])
	if err != nil {
		return err
	}
	start := earliest.AddDate(0, 0, -o.cfg.HistoryDays).Format(marketdata.DateFormat)
	end := dates[len(dates)-1]
	return rc.Cache.Load(ctx, symbols, start, end)
}

// failRemaining marks every pending analytics date failed after a fatal error
func (o *Orchestrator) failRemaining(ctx context.Context, rc *RunContext, dates []string, report *RunReport, reason string) {
	pending := make(map[string]bool, len(dates))
	for _, d := range dates {
		pending[d] = true
	}
	for i := range report.Dates {
		if pending[report.Dates[i].Date] && report.Dates[i].Status == "" {
			report.Dates[i].Status = results.DateStatusFailed
			report.Dates[i].Error = reason
		}
	}
}

// finishDates tallies date outcomes and persists per-date status rows
func (o *Orchestrator) finishDates(ctx context.Context, rc *RunContext, report *RunReport) {
	for i := range report.Dates {
		d := &report.Dates[i]
		switch d.Status {
		case results.DateStatusSkipped:
			continue
		case results.DateStatusSuccess:
			report.Succeeded++
		case results.DateStatusPartial:
			report.Partial++
		case results.DateStatusFailed:
			report.Failed++
		default:
			// Collected but never analyzed
			d.Status = results.DateStatusFailed
			report.Failed++
		}
		if err := o.deps.Runs.RecordDate(ctx, rc.RunID, d.Date, d.Status, d.Error); err != nil {
			o.log.Error().Err(err).Str("date", d.Date).Msg("Failed to record date status")
		}
	}
}
