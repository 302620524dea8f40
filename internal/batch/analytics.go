package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/marketdata"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/correlation"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/stress"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/volatility"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/results"
)

// jobPlan is one portfolio's work order for a date, with skip decisions and
// any stored inputs resolved up front so workers stay free of I/O.
type jobPlan struct {
	p             portfolio.Portfolio
	weights       portfolio.WeightSet
	skip          map[results.MetricKind]bool
	storedAvgCorr float64 // used when correlation is skipped but stress is not
}

// jobOutput carries one portfolio's computed results back for persistence
type jobOutput struct {
	plan   *jobPlan
	factor *factors.FactorBetaResult
	market *factors.DualWindowBeta
	rate   *factors.DualWindowBeta
	corr   *correlation.Result
	stress []*stress.Result
	vol    *volatility.Forecast
}

// processDate runs the analytics phases for one calculation date: pure
// engine work fans out across the worker pool, persistence happens here at
// the phase boundary, and the date commits in isolation from other dates.
func (o *Orchestrator) processDate(ctx context.Context, rc *RunContext, date string, portfolios []portfolio.Portfolio, report *RunReport) {
	dr := dateReport(report, date)
	started := time.Now()

	windowDates, err := o.windowDates(date)
	if err != nil {
		dr.Status = results.DateStatusFailed
		dr.Error = err.Error()
		report.recordError("analytics", err.Error())
		return
	}

	plans, skippedJobs, err := o.planJobs(ctx, rc, date, portfolios, report)
	if err != nil {
		dr.Status = results.DateStatusFailed
		dr.Error = err.Error()
		report.recordError("analytics", err.Error())
		return
	}
	dr.JobsSkipped = skippedJobs

	if len(plans) == 0 {
		dr.Status = results.DateStatusSuccess
		return
	}

	outputs := o.computeJobs(rc, plans, windowDates)

	for _, out := range outputs {
		computed, failed := o.persistJob(ctx, date, out, report)
		dr.JobsComputed += computed
		dr.JobsFailed += failed
	}

	switch {
	case dr.JobsFailed == 0:
		dr.Status = results.DateStatusSuccess
	case dr.JobsComputed > 0 || dr.JobsSkipped > 0:
		dr.Status = results.DateStatusPartial
	default:
		dr.Status = results.DateStatusFailed
	}

	o.log.Info().
		Str("date", date).
		Str("status", dr.Status).
		Int("computed", dr.JobsComputed).
		Int("skipped", dr.JobsSkipped).
		Int("failed", dr.JobsFailed).
		Dur("took", time.Since(started)).
		Msg("Date analytics complete")
}

// windowDates is the trailing trading-day window feeding every engine for a
// calculation date.
func (o *Orchestrator) windowDates(date string) ([]string, error) {
	end, err := time.Parse(marketdata.DateFormat, date)
	if err != nil {
		return nil, fmt.Errorf("invalid calculation date %q: %w", date, err)
	}
	start := end.AddDate(0, 0, -o.cfg.HistoryDays)

	days := o.deps.Calendar.TradingDaysBetween(start, end)
	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = d.Format(marketdata.DateFormat)
	}
	return dates, nil
}

// planJobs resolves weights and skip decisions for every portfolio. Skip
// checks and stored-input reads are I/O and stay out of the workers.
func (o *Orchestrator) planJobs(ctx context.Context, rc *RunContext, date string, portfolios []portfolio.Portfolio, report *RunReport) ([]*jobPlan, int, error) {
	var plans []*jobPlan
	skippedJobs := 0

	for _, p := range portfolios {
		positions, err := o.deps.Portfolios.GetPositions(ctx, p.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load positions for portfolio %d: %w", p.ID, err)
		}

		plan := &jobPlan{
			p:       p,
			weights: portfolio.ResolveWeights(positions),
			skip:    make(map[results.MetricKind]bool, len(results.AllMetricKinds)),
		}

		allSkipped := true
		for _, kind := range results.AllMetricKinds {
			if rc.Force {
				allSkipped = false
				continue
			}
			has, err := o.deps.Results.Has(ctx, p.ID, date, kind)
			if err != nil {
				return nil, 0, fmt.Errorf("failed skip check for portfolio %d: %w", p.ID, err)
			}
			plan.skip[kind] = has
			if has {
				skippedJobs++
			} else {
				allSkipped = false
			}
		}
		if allSkipped {
			continue
		}

		// Stress reuses the correlation structure; when that is skipped,
		// pull the stored average so the adjustment stays consistent.
		if plan.skip[results.KindCorrelation] && !plan.skip[results.KindStress] {
			record, err := o.deps.Results.GetCorrelation(ctx, p.ID, date)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to load stored correlation for portfolio %d: %w", p.ID, err)
			}
			if record != nil {
				plan.storedAvgCorr = record.AvgCorrelation
			}
		}

		plans = append(plans, plan)
	}

	return plans, skippedJobs, nil
}

// computeJobs fans portfolio work across the bounded pool. Workers only
// touch the read-only cache; no shared mutable state, no I/O.
func (o *Orchestrator) computeJobs(rc *RunContext, plans []*jobPlan, windowDates []string) []*jobOutput {
	builder := factors.NewSeriesBuilder(rc.Cache)

	jobs := make(chan *jobPlan)
	outputs := make([]*jobOutput, 0, len(plans))
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := o.cfg.Workers
	if workers > len(plans) {
		workers = len(plans)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for plan := range jobs {
				out := o.computeJob(builder, plan, windowDates)
				mu.Lock()
				outputs = append(outputs, out)
				mu.Unlock()
			}
		}()
	}

	for _, plan := range plans {
		jobs <- plan
	}
	close(jobs)
	wg.Wait()

	return outputs
}

// computeJob runs every needed engine for one portfolio. Factor betas and
// correlation are computed even when their own persistence is skipped if the
// stress engine still needs them as inputs.
func (o *Orchestrator) computeJob(builder *factors.SeriesBuilder, plan *jobPlan, windowDates []string) *jobOutput {
	out := &jobOutput{plan: plan}

	needFactor := !plan.skip[results.KindFactorExposures] || !plan.skip[results.KindStress]
	if needFactor {
		out.factor = o.deps.FactorEngine.Compute(builder, plan.weights, windowDates)
	}

	if !plan.skip[results.KindMarketBeta] {
		out.market = o.deps.MarketEngine.Compute(builder, plan.weights, windowDates)
	}
	if !plan.skip[results.KindRateBeta] {
		out.rate = o.deps.RateEngine.Compute(builder, plan.weights, windowDates)
	}

	needCorr := !plan.skip[results.KindCorrelation] || !plan.skip[results.KindStress]
	if needCorr {
		out.corr = o.deps.CorrelationEngine.Compute(builder, plan.weights, windowDates)
	}

	if !plan.skip[results.KindStress] {
		avgCorr := plan.storedAvgCorr
		if out.corr != nil && out.corr.Status == correlation.StatusOK {
			avgCorr = out.corr.AvgCorrelation
		}
		for _, scenario := range o.deps.Scenarios {
			out.stress = append(out.stress, o.deps.StressEngine.Compute(scenario, plan.weights, out.factor, avgCorr))
		}
	}

	if !plan.skip[results.KindVolatility] {
		out.vol = o.deps.VolatilityEngine.Compute(builder, plan.weights, windowDates)
	}

	return out
}

// persistJob writes one portfolio's results, counting one job per metric
// kind. A single kind's write failure degrades the date to partial, not the
// whole run.
func (o *Orchestrator) persistJob(ctx context.Context, date string, out *jobOutput, report *RunReport) (computed, failed int) {
	pid := out.plan.p.ID

	write := func(kind results.MetricKind, fn func() error) {
		if err := fn(); err != nil {
			o.log.Error().Err(err).Int64("portfolio_id", pid).Str("kind", string(kind)).Msg("Failed to persist result")
			report.recordError("persistence", err.Error())
			failed++
			return
		}
		computed++
	}

	if !out.plan.skip[results.KindFactorExposures] && out.factor != nil {
		write(results.KindFactorExposures, func() error {
			return o.deps.Results.UpsertFactorExposures(ctx, pid, date, out.factor)
		})
	}
	if out.market != nil {
		write(results.KindMarketBeta, func() error {
			return o.deps.Results.UpsertBeta(ctx, pid, date, out.market)
		})
	}
	if out.rate != nil {
		write(results.KindRateBeta, func() error {
			return o.deps.Results.UpsertBeta(ctx, pid, date, out.rate)
		})
	}
	if !out.plan.skip[results.KindCorrelation] && out.corr != nil {
		write(results.KindCorrelation, func() error {
			return o.deps.Results.UpsertCorrelation(ctx, pid, date, out.corr)
		})
	}
	if len(out.stress) > 0 {
		write(results.KindStress, func() error {
			for _, s := range out.stress {
				if err := o.deps.Results.UpsertStress(ctx, pid, date, s); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if out.vol != nil {
		write(results.KindVolatility, func() error {
			return o.deps.Results.UpsertVolatility(ctx, pid, date, out.vol)
		})
	}

	return computed, failed
}

func dateReport(report *RunReport, date string) *DateReport {
	for i := range report.Dates {
		if report.Dates[i].Date == date {
			return &report.Dates[i]
		}
	}
	report.Dates = append(report.Dates, DateReport{Date: date})
	return &report.Dates[len(report.Dates)-1]
}
