package factors

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/pkg/formulas"
)

// DualWindowBeta is a single-factor beta measured at two windows. The
// recent/baseline divergence flags regime shifts without anyone eyeballing
// charts.
type DualWindowBeta struct {
	Status       Status
	Factor       FactorID
	RecentBeta   float64
	RecentR2     float64
	BaselineBeta float64
	BaselineR2   float64
	RegimeShift  bool
	Observations int // aligned observations in the baseline window
}

// DualWindowEngineConfig tunes the two regression windows
type DualWindowEngineConfig struct {
	RecentWindow    int     // trading days, default 90
	BaselineWindow  int     // trading days, default 252
	MinObservations int     // minimum aligned observations per window
	ShiftThreshold  float64 // absolute beta divergence that flags a shift
}

// DualWindowBetaEngine computes portfolio beta against one factor proxy at a
// recent and a baseline window. Used for both the market and interest-rate
// sensitivities.
type DualWindowBetaEngine struct {
	registry *Registry
	factor   FactorID
	cfg      DualWindowEngineConfig
	log      zerolog.Logger
}

// NewMarketBetaEngine creates the broad-market dual-window engine
func NewMarketBetaEngine(registry *Registry, cfg DualWindowEngineConfig, log zerolog.Logger) *DualWindowBetaEngine {
	return newDualWindowEngine(registry, FactorMarket, cfg, log, "market_beta")
}

// NewInterestRateBetaEngine creates the rate-proxy dual-window engine
func NewInterestRateBetaEngine(registry *Registry, cfg DualWindowEngineConfig, log zerolog.Logger) *DualWindowBetaEngine {
	return newDualWindowEngine(registry, FactorInterestRate, cfg, log, "interest_rate_beta")
}

func newDualWindowEngine(registry *Registry, factor FactorID, cfg DualWindowEngineConfig, log zerolog.Logger, name string) *DualWindowBetaEngine {
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 90
	}
	if cfg.BaselineWindow <= 0 {
		cfg.BaselineWindow = 252
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = 60
	}
	if cfg.ShiftThreshold <= 0 {
		cfg.ShiftThreshold = 0.15
	}
	return &DualWindowBetaEngine{
		registry: registry,
		factor:   factor,
		cfg:      cfg,
		log:      log.With().Str("engine", name).Logger(),
	}
}

// Compute regresses the portfolio's returns on the factor proxy at both
// windows. The dates slice is the full baseline window, oldest first; the
// recent window is its tail.
func (e *DualWindowBetaEngine) Compute(builder *SeriesBuilder, weights portfolio.WeightSet, dates []string) *DualWindowBeta {
	if weights.Empty() {
		return &DualWindowBeta{Status: StatusNoEligiblePositions, Factor: e.factor}
	}

	proxy, ok := e.registry.Proxy(e.factor)
	if !ok {
		e.log.Warn().Str("factor", string(e.factor)).Msg("Factor proxy not seeded")
		return &DualWindowBeta{Status: StatusInsufficientHistory, Factor: e.factor}
	}

	portReturns := builder.PortfolioReturns(weights, dates)
	factorReturns := builder.Returns(proxy, dates)
	aligned := AlignDates(dates, portReturns, factorReturns)

	if len(aligned) < e.cfg.MinObservations {
		return &DualWindowBeta{
			Status:       StatusInsufficientHistory,
			Factor:       e.factor,
			Observations: len(aligned),
		}
	}

	baseline, err := formulas.OLS(Sample(portReturns, aligned), Sample(factorReturns, aligned))
	if err != nil {
		return &DualWindowBeta{Status: StatusInsufficientHistory, Factor: e.factor, Observations: len(aligned)}
	}

	recentDates := aligned
	if len(aligned) > e.cfg.RecentWindow {
		recentDates = aligned[len(aligned)-e.cfg.RecentWindow:]
	}
	recent, err := formulas.OLS(Sample(portReturns, recentDates), Sample(factorReturns, recentDates))
	if err != nil {
		// Fall back to the baseline estimate for both windows
		recent = baseline
	}

	shift := math.Abs(recent.Beta-baseline.Beta) > e.cfg.ShiftThreshold
	if shift {
		e.log.Info().
			Str("factor", string(e.factor)).
			Float64("recent", recent.Beta).
			Float64("baseline", baseline.Beta).
			Msg("Beta regime shift detected")
	}

	return &DualWindowBeta{
		Status:       StatusOK,
		Factor:       e.factor,
		RecentBeta:   recent.Beta,
		RecentR2:     recent.RSquared,
		BaselineBeta: baseline.Beta,
		BaselineR2:   baseline.RSquared,
		RegimeShift:  shift,
		Observations: len(aligned),
	}
}
