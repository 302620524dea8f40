package formulas

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientObservations indicates a regression was requested with too few
// aligned data points to produce a meaningful estimate.
var ErrInsufficientObservations = errors.New("insufficient observations for regression")

// OLSResult holds the output of a single-factor least-squares regression.
type OLSResult struct {
	Beta      float64
	Alpha     float64
	RSquared  float64
	Residuals []float64
}

// OLS regresses y on a single predictor x (both daily return series).
// Requires at least 3 observations and non-degenerate predictor variance.
func OLS(y, x []float64) (*OLSResult, error) {
	if len(y) != len(x) || len(y) < 3 {
		return nil, ErrInsufficientObservations
	}

	varX := stat.Variance(x, nil)
	if varX == 0 || math.IsNaN(varX) {
		return nil, ErrInsufficientObservations
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r2 := stat.RSquared(x, y, nil, alpha, beta)
	if math.IsNaN(r2) {
		r2 = 0
	}

	residuals := make([]float64, len(y))
	for i := range y {
		residuals[i] = y[i] - (alpha + beta*x[i])
	}

	return &OLSResult{
		Beta:      beta,
		Alpha:     alpha,
		RSquared:  r2,
		Residuals: residuals,
	}, nil
}

// RidgeResult holds the output of an L2-regularized multi-factor regression.
type RidgeResult struct {
	Betas       []float64 // One coefficient per predictor column, in input order
	RSquared    float64
	ResidualVol float64 // Annualized standard deviation of residuals
}

// Ridge regresses y on the columns of X with an L2 penalty lambda.
// Both y and the predictor columns are demeaned before solving, so no intercept
// is estimated; the penalty stabilizes coefficients when predictors are
// correlated (ordinary least squares is ill-conditioned for correlated factor
// return series). The penalty is scaled by the average predictor energy so
// lambda is unitless and does not depend on the magnitude of daily returns.
func Ridge(y []float64, X [][]float64, lambda float64) (*RidgeResult, error) {
	n := len(y)
	if n < 3 || len(X) == 0 {
		return nil, ErrInsufficientObservations
	}
	k := len(X)
	for _, col := range X {
		if len(col) != n {
			return nil, ErrInsufficientObservations
		}
	}
	if lambda < 0 {
		lambda = 0
	}

	// Demean response and predictors.
	yc := demean(y)
	cols := make([][]float64, k)
	for j, col := range X {
		cols[j] = demean(col)
	}

	// Average diagonal energy sets the penalty scale.
	trace := 0.0
	for j := 0; j < k; j++ {
		for t := 0; t < n; t++ {
			trace += cols[j][t] * cols[j][t]
		}
	}
	penalty := lambda * trace / float64(k)

	// Build X'X + penalty*I and X'y.
	gram := mat.NewSymDense(k, nil)
	xty := mat.NewVecDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			dot := 0.0
			for t := 0; t < n; t++ {
				dot += cols[i][t] * cols[j][t]
			}
			if i == j {
				dot += penalty
			}
			gram.SetSym(i, j, dot)
		}
		dot := 0.0
		for t := 0; t < n; t++ {
			dot += cols[i][t] * yc[t]
		}
		xty.SetVec(i, dot)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return nil, errors.New("ridge system not positive definite")
	}

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, xty); err != nil {
		return nil, err
	}

	betas := make([]float64, k)
	for j := 0; j < k; j++ {
		betas[j] = beta.AtVec(j)
	}

	// Goodness of fit on the demeaned system.
	var ssr, sst float64
	residuals := make([]float64, n)
	for t := 0; t < n; t++ {
		fitted := 0.0
		for j := 0; j < k; j++ {
			fitted += betas[j] * cols[j][t]
		}
		residuals[t] = yc[t] - fitted
		ssr += residuals[t] * residuals[t]
		sst += yc[t] * yc[t]
	}

	r2 := 0.0
	if sst > 0 {
		r2 = 1.0 - ssr/sst
		if r2 < 0 {
			r2 = 0
		}
	}

	return &RidgeResult{
		Betas:       betas,
		RSquared:    r2,
		ResidualVol: AnnualizedVolatility(residuals),
	}, nil
}

// MultiOLS regresses y on the columns of X without regularization.
// Used for the HAR volatility fit, where the small predictor set is
// well-conditioned by construction.
func MultiOLS(y []float64, X [][]float64) ([]float64, float64, error) {
	n := len(y)
	k := len(X)
	if n < k+2 || k == 0 {
		return nil, 0, ErrInsufficientObservations
	}

	// Design matrix with intercept column.
	design := mat.NewDense(n, k+1, nil)
	for t := 0; t < n; t++ {
		design.Set(t, 0, 1.0)
		for j := 0; j < k; j++ {
			if len(X[j]) != n {
				return nil, 0, ErrInsufficientObservations
			}
			design.Set(t, j+1, X[j][t])
		}
	}
	response := mat.NewVecDense(n, append([]float64(nil), y...))

	var coef mat.VecDense
	if err := coef.SolveVec(design, response); err != nil {
		return nil, 0, err
	}

	out := make([]float64, k+1)
	for j := 0; j <= k; j++ {
		out[j] = coef.AtVec(j)
	}

	meanY := Mean(y)
	var ssr, sst float64
	for t := 0; t < n; t++ {
		fitted := out[0]
		for j := 0; j < k; j++ {
			fitted += out[j+1] * X[j][t]
		}
		ssr += (y[t] - fitted) * (y[t] - fitted)
		sst += (y[t] - meanY) * (y[t] - meanY)
	}
	r2 := 0.0
	if sst > 0 {
		r2 = 1.0 - ssr/sst
	}

	return out, r2, nil
}

func demean(data []float64) []float64 {
	m := Mean(data)
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = v - m
	}
	return out
}
