// Package volatility forecasts portfolio volatility with a heterogeneous
// autoregressive (HAR) combination of realized volatility at daily, weekly,
// and monthly horizons.
package volatility

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/pkg/formulas"
)

// Status classifies an engine outcome
type Status string

const (
	StatusOK                  Status = "ok"
	StatusInsufficientData    Status = "insufficient_data"
	StatusNoEligiblePositions Status = "no_eligible_positions"
)

// Method records how the forecast coefficients were obtained
type Method string

const (
	MethodHAROLS       Method = "har_ols"
	MethodFixedWeights Method = "fixed_weights"
)

const (
	weeklyWindow  = 5
	monthlyWindow = 22
)

// Fallback combination weights for the degenerate case where the OLS fit is
// singular or produces a non-positive variance forecast. Long-memory
// components carry most of the weight.
const (
	fallbackDaily   = 0.25
	fallbackWeekly  = 0.35
	fallbackMonthly = 0.40
)

// Forecast is one portfolio's volatility estimate for a date
type Forecast struct {
	Status       Status
	Annualized   float64 // forecast volatility, annualized
	HorizonVol   float64 // volatility over the forecast horizon
	Horizon      int     // trading days
	Method       Method
	RSquared     float64 // OLS fit quality, zero for fixed weights
	Observations int
	WeightSource string // market, entry, or mixed
}

// EngineConfig tunes the forecast
type EngineConfig struct {
	MinObservations int // return observations below this degrade the portfolio
	Horizon         int // forecast horizon in trading days
}

// Engine produces HAR volatility forecasts. Pure over the cache: no I/O.
type Engine struct {
	cfg EngineConfig
	log zerolog.Logger
}

// NewEngine creates a new volatility engine
func NewEngine(cfg EngineConfig, log zerolog.Logger) *Engine {
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = 63
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 21
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("engine", "volatility").Logger(),
	}
}

// Compute forecasts next-period variance by regressing daily realized
// variance on its daily, weekly, and monthly rolling means over the trailing
// window, then annualizes. A singular fit falls back to fixed combination
// weights rather than failing the portfolio.
func (e *Engine) Compute(builder *factors.SeriesBuilder, weights portfolio.WeightSet, dates []string) *Forecast {
	if weights.Empty() {
		return &Forecast{Status: StatusNoEligiblePositions, Horizon: e.cfg.Horizon}
	}

	series := builder.PortfolioReturns(weights, dates)
	returns := make([]float64, 0, len(dates))
	for _, d := range dates {
		if r, ok := series[d]; ok {
			returns = append(returns, r)
		}
	}

	if len(returns) < e.cfg.MinObservations {
		return &Forecast{
			Status:       StatusInsufficientData,
			Horizon:      e.cfg.Horizon,
			Observations: len(returns),
			WeightSource: weightSource(weights),
		}
	}

	// Daily realized variance and its rolling means
	n := len(returns)
	rv := make([]float64, n)
	for i, r := range returns {
		rv[i] = r * r
	}
	rvWeekly := talib.Sma(rv, weeklyWindow)
	rvMonthly := talib.Sma(rv, monthlyWindow)

	forecast, method, r2 := e.fit(rv, rvWeekly, rvMonthly)

	daily := math.Sqrt(forecast)
	return &Forecast{
		Status:       StatusOK,
		Annualized:   daily * math.Sqrt(formulas.TradingDaysPerYear),
		HorizonVol:   daily * math.Sqrt(float64(e.cfg.Horizon)),
		Horizon:      e.cfg.Horizon,
		Method:       method,
		RSquared:     r2,
		Observations: n,
		WeightSource: weightSource(weights),
	}
}

// fit estimates next-day realized variance. OLS of rv[t] on the lagged
// daily/weekly/monthly components; fixed weights when the system is
// singular or the prediction is non-positive.
func (e *Engine) fit(rv, rvWeekly, rvMonthly []float64) (float64, Method, float64) {
	n := len(rv)
	last := n - 1

	// Regression sample starts once the monthly mean is defined
	var y []float64
	X := make([][]float64, 3)
	for t := monthlyWindow; t < n; t++ {
		y = append(y, rv[t])
		X[0] = append(X[0], rv[t-1])
		X[1] = append(X[1], rvWeekly[t-1])
		X[2] = append(X[2], rvMonthly[t-1])
	}

	coef, r2, err := formulas.MultiOLS(y, X)
	if err == nil {
		predicted := coef[0] + coef[1]*rv[last] + coef[2]*rvWeekly[last] + coef[3]*rvMonthly[last]
		if predicted > 0 {
			return predicted, MethodHAROLS, r2
		}
		e.log.Debug().Float64("predicted", predicted).Msg("Non-positive HAR prediction, using fixed weights")
	} else {
		e.log.Debug().Err(err).Msg("HAR fit degenerate, using fixed weights")
	}

	fallback := fallbackDaily*rv[last] + fallbackWeekly*rvWeekly[last] + fallbackMonthly*rvMonthly[last]
	return fallback, MethodFixedWeights, 0
}

func weightSource(weights portfolio.WeightSet) string {
	var market, entry bool
	for _, w := range weights.Weights {
		switch w.Source {
		case portfolio.ValueSourceMarket:
			market = true
		case portfolio.ValueSourceEntry:
			entry = true
		}
	}
	switch {
	case market && entry:
		return "mixed"
	case entry:
		return "entry"
	default:
		return "market"
	}
}
