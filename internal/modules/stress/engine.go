package stress

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
)

// Status classifies an engine outcome
type Status string

const (
	StatusOK                  Status = "ok"
	StatusNoEligiblePositions Status = "no_eligible_positions"
	StatusNoExposures         Status = "no_exposures"
)

// Result is one scenario's estimated P&L for a portfolio
type Result struct {
	Status            Status
	ScenarioID        string
	ScenarioName      string
	DirectPnL         float64
	CorrelatedPnL     float64
	CorrelationEffect float64 // correlated minus direct
	Clipped           bool
	MissingFactors    []factors.FactorID // shocked factors with no measured exposure
	DegradedSymbols   []string           // positions contributing zero for lack of betas
}

// EngineConfig tunes the stress computation
type EngineConfig struct {
	MaxLossFraction float64 // losses are clipped to this fraction of portfolio value
}

// Engine propagates scenario shocks through position-level factor betas.
// Pure: no I/O; exposures and correlation structure come in as arguments.
type Engine struct {
	cfg EngineConfig
	log zerolog.Logger
}

// NewEngine creates a new stress test engine
func NewEngine(cfg EngineConfig, log zerolog.Logger) *Engine {
	if cfg.MaxLossFraction <= 0 || cfg.MaxLossFraction > 1 {
		cfg.MaxLossFraction = 0.99
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("engine", "stress_test").Logger(),
	}
}

// Compute estimates one scenario's direct and correlation-adjusted P&L.
// Direct P&L sums position value times beta times shock over all shocked
// factors. A shocked factor with no measured exposure contributes zero and
// is reported, never a crash. The correlated P&L scales losses by an
// amplification derived from average pairwise correlation: highly correlated
// books lose more than the independent-position sum suggests.
func (e *Engine) Compute(scenario Scenario, weights portfolio.WeightSet, betas *factors.FactorBetaResult, avgCorrelation float64) *Result {
	if weights.Empty() {
		return &Result{Status: StatusNoEligiblePositions, ScenarioID: scenario.ID, ScenarioName: scenario.Name}
	}

	result := &Result{
		Status:       StatusOK,
		ScenarioID:   scenario.ID,
		ScenarioName: scenario.Name,
	}

	exposures := make(map[string]map[factors.FactorID]float64)
	if betas != nil {
		for _, pos := range betas.Positions {
			if pos.Status == factors.StatusOK {
				exposures[pos.Symbol] = pos.Betas
			}
		}
	}
	if len(exposures) == 0 {
		result.Status = StatusNoExposures
		return result
	}

	missing := make(map[factors.FactorID]bool)
	direct := 0.0
	for _, w := range weights.Weights {
		posBetas, ok := exposures[w.Symbol]
		if !ok {
			result.DegradedSymbols = append(result.DegradedSymbols, w.Symbol)
			continue
		}
		for factor, shock := range scenario.Shocks {
			beta, ok := posBetas[factor]
			if !ok {
				missing[factor] = true
				continue
			}
			direct += w.Value * beta * shock
		}
	}

	for _, factor := range factors.AllFactorIDs {
		if missing[factor] {
			result.MissingFactors = append(result.MissingFactors, factor)
			e.log.Warn().
				Str("scenario", scenario.ID).
				Str("factor", string(factor)).
				Msg("Shocked factor has no measured exposure, contribution treated as zero")
		}
	}

	result.DirectPnL = direct
	result.CorrelatedPnL = e.correlated(direct, avgCorrelation, len(weights.Weights))
	result.CorrelationEffect = result.CorrelatedPnL - result.DirectPnL

	result.DirectPnL, result.Clipped = e.clip(result.DirectPnL, weights.TotalValue, scenario.ID, result.Clipped)
	result.CorrelatedPnL, result.Clipped = e.clip(result.CorrelatedPnL, weights.TotalValue, scenario.ID, result.Clipped)

	return result
}

// correlated amplifies losses by the average pairwise correlation, scaled by
// how much diversification the book nominally has. A single position or an
// uncorrelated book sees no adjustment; gains are not amplified.
func (e *Engine) correlated(direct, avgCorrelation float64, positions int) float64 {
	if direct >= 0 || positions < 2 || avgCorrelation <= 0 {
		return direct
	}
	diversification := 1.0 - 1.0/math.Sqrt(float64(positions))
	return direct * (1 + avgCorrelation*diversification)
}

// clip bounds a loss to the configured fraction of portfolio value. The clip
// is a defensive bound on implausible compounding, logged when applied.
func (e *Engine) clip(pnl, totalValue float64, scenarioID string, alreadyClipped bool) (float64, bool) {
	bound := -e.cfg.MaxLossFraction * totalValue
	if pnl >= bound {
		return pnl, alreadyClipped
	}
	e.log.Warn().
		Str("scenario", scenarioID).
		Float64("pnl", pnl).
		Float64("bound", bound).
		Msg("Stress loss clipped to plausibility bound")
	return bound, true
}
