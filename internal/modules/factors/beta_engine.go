package factors

import (
	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/pkg/formulas"
)

// Status classifies an engine outcome. Degraded outcomes are results, not
// errors; the orchestrator records them and moves on.
type Status string

const (
	StatusOK                  Status = "ok"
	StatusInsufficientHistory Status = "insufficient_history"
	StatusNoEligiblePositions Status = "no_eligible_positions"
)

// FactorExposure is one entity's beta vector against the factor universe
type FactorExposure struct {
	Status       Status
	EntityType   string // "position" or "portfolio"
	Symbol       string // position symbol, empty for portfolio rows
	Betas        map[FactorID]float64
	RSquared     float64
	ResidualVol  float64
	Observations int
}

// SpreadExposure is the companion single-factor view against a long/short
// ETF pair, kept side by side with the ridge betas.
type SpreadExposure struct {
	Status       Status
	EntityType   string
	Symbol       string
	Factor       FactorID
	Beta         float64
	RSquared     float64
	Observations int
}

// FactorBetaResult bundles one portfolio's full factor run
type FactorBetaResult struct {
	Status    Status
	Portfolio FactorExposure
	Positions []FactorExposure
	Spreads   []SpreadExposure
}

// FactorBetaEngineConfig tunes the regression
type FactorBetaEngineConfig struct {
	MinObservations int     // aligned observations below this degrade the entity
	Lambda          float64 // ridge L2 penalty
}

// FactorBetaEngine computes ridge-regularized betas for every position and
// the portfolio against the seeded factor universe, plus plain OLS betas
// against the spread pairs. Pure over the cache: no I/O.
type FactorBetaEngine struct {
	registry *Registry
	cfg      FactorBetaEngineConfig
	log      zerolog.Logger
}

// NewFactorBetaEngine creates a new factor beta engine
func NewFactorBetaEngine(registry *Registry, cfg FactorBetaEngineConfig, log zerolog.Logger) *FactorBetaEngine {
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = 60
	}
	return &FactorBetaEngine{
		registry: registry,
		cfg:      cfg,
		log:      log.With().Str("engine", "factor_beta").Logger(),
	}
}

// Compute runs the full factor regression for one portfolio over the given
// trading dates (oldest first, trailing window already applied by the
// caller).
func (e *FactorBetaEngine) Compute(builder *SeriesBuilder, weights portfolio.WeightSet, dates []string) *FactorBetaResult {
	if weights.Empty() {
		return &FactorBetaResult{Status: StatusNoEligiblePositions}
	}

	factorIDs := e.registry.Factors()
	factorSeries := make([]map[string]float64, len(factorIDs))
	for i, id := range factorIDs {
		proxy, _ := e.registry.Proxy(id)
		factorSeries[i] = builder.Returns(proxy, dates)
	}

	result := &FactorBetaResult{Status: StatusOK}

	for _, w := range weights.Weights {
		posReturns := builder.Returns(w.Symbol, dates)
		exp := e.regress(posReturns, factorIDs, factorSeries, dates)
		exp.EntityType = "position"
		exp.Symbol = w.Symbol
		result.Positions = append(result.Positions, exp)
	}

	portReturns := builder.PortfolioReturns(weights, dates)
	result.Portfolio = e.regress(portReturns, factorIDs, factorSeries, dates)
	result.Portfolio.EntityType = "portfolio"

	result.Spreads = e.computeSpreads(builder, weights, portReturns, dates)

	if result.Portfolio.Status != StatusOK {
		result.Status = result.Portfolio.Status
	}
	return result
}

// regress aligns one entity's returns with all factor series and runs the
// ridge fit. Too few aligned observations degrade the entity, not the run.
func (e *FactorBetaEngine) regress(entity map[string]float64, factorIDs []FactorID, factorSeries []map[string]float64, dates []string) FactorExposure {
	all := append([]map[string]float64{entity}, factorSeries...)
	aligned := AlignDates(dates, all...)

	if len(aligned) < e.cfg.MinObservations {
		e.log.Debug().Int("observations", len(aligned)).Msg("Insufficient aligned history for factor regression")
		return FactorExposure{Status: StatusInsufficientHistory, Observations: len(aligned)}
	}

	y := Sample(entity, aligned)
	X := make([][]float64, len(factorIDs))
	for i, s := range factorSeries {
		X[i] = Sample(s, aligned)
	}

	fit, err := formulas.Ridge(y, X, e.cfg.Lambda)
	if err != nil {
		e.log.Warn().Err(err).Msg("Ridge regression failed")
		return FactorExposure{Status: StatusInsufficientHistory, Observations: len(aligned)}
	}

	betas := make(map[FactorID]float64, len(factorIDs))
	for i, id := range factorIDs {
		betas[id] = fit.Betas[i]
	}

	return FactorExposure{
		Status:       StatusOK,
		Betas:        betas,
		RSquared:     fit.RSquared,
		ResidualVol:  fit.ResidualVol,
		Observations: len(aligned),
	}
}

// computeSpreads runs the complementary OLS view against each ETF pair for
// the portfolio and every position.
func (e *FactorBetaEngine) computeSpreads(builder *SeriesBuilder, weights portfolio.WeightSet, portReturns map[string]float64, dates []string) []SpreadExposure {
	var out []SpreadExposure

	for _, pair := range e.registry.Spreads() {
		spread := builder.SpreadReturns(pair, dates)

		out = append(out, e.spreadRegress(portReturns, spread, pair.Factor, "portfolio", "", dates))
		for _, w := range weights.Weights {
			posReturns := builder.Returns(w.Symbol, dates)
			out = append(out, e.spreadRegress(posReturns, spread, pair.Factor, "position", w.Symbol, dates))
		}
	}

	return out
}

func (e *FactorBetaEngine) spreadRegress(entity, spread map[string]float64, factor FactorID, entityType, symbol string, dates []string) SpreadExposure {
	aligned := AlignDates(dates, entity, spread)
	if len(aligned) < e.cfg.MinObservations {
		return SpreadExposure{
			Status:       StatusInsufficientHistory,
			EntityType:   entityType,
			Symbol:       symbol,
			Factor:       factor,
			Observations: len(aligned),
		}
	}

	fit, err := formulas.OLS(Sample(entity, aligned), Sample(spread, aligned))
	if err != nil {
		return SpreadExposure{
			Status:       StatusInsufficientHistory,
			EntityType:   entityType,
			Symbol:       symbol,
			Factor:       factor,
			Observations: len(aligned),
		}
	}

	return SpreadExposure{
		Status:       StatusOK,
		EntityType:   entityType,
		Symbol:       symbol,
		Factor:       factor,
		Beta:         fit.Beta,
		RSquared:     fit.RSquared,
		Observations: len(aligned),
	}
}
