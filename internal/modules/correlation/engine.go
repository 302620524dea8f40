// Package correlation computes the pairwise co-movement structure of a
// portfolio: correlation matrix, clusters, and concentration metrics.
package correlation

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/factors"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/pkg/formulas"
)

// Status classifies an engine outcome
type Status string

const (
	StatusOK                  Status = "ok"
	StatusNoEligiblePositions Status = "no_eligible_positions"
)

// Pair is one off-diagonal matrix entry for reporting
type Pair struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Correlation float64 `json:"correlation"`
}

// FlaggedPair is a pair whose correlation is undefined: too few overlapping
// observations or a degenerate (constant) return series. Flagged pairs carry
// NaN in the matrix, never a defaulted zero.
type FlaggedPair struct {
	A            string `json:"a"`
	B            string `json:"b"`
	Observations int    `json:"observations"`
}

// Result is one portfolio's correlation structure for a date
type Result struct {
	Status             Status
	Symbols            []string    // matrix row/column order
	Matrix             [][]float64 // symmetric, diagonal 1.0, NaN where undefined
	Flagged            []FlaggedPair
	Clusters           [][]string // connected components of size >= 2
	HHI                float64    // 0..10,000
	EffectivePositions float64    // 10,000 / HHI
	AvgCorrelation     float64    // mean of defined off-diagonal entries
	TopPairs           []Pair
}

// EngineConfig tunes the correlation computation
type EngineConfig struct {
	MinOverlap       int     // overlapping observations below this flag the pair
	ClusterThreshold float64 // |corr| at or above this links two positions
	TopN             int
}

// Engine computes correlation structure from cached returns. Pure: no I/O.
type Engine struct {
	cfg EngineConfig
	log zerolog.Logger
}

// NewEngine creates a new correlation engine
func NewEngine(cfg EngineConfig, log zerolog.Logger) *Engine {
	if cfg.MinOverlap <= 0 {
		cfg.MinOverlap = 30
	}
	if cfg.ClusterThreshold <= 0 {
		cfg.ClusterThreshold = 0.70
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("engine", "correlation").Logger(),
	}
}

// Compute builds the full correlation structure for one portfolio over the
// given trading dates (oldest first).
func (e *Engine) Compute(builder *factors.SeriesBuilder, weights portfolio.WeightSet, dates []string) *Result {
	if weights.Empty() {
		return &Result{Status: StatusNoEligiblePositions}
	}

	n := len(weights.Weights)
	symbols := make([]string, n)
	series := make([]map[string]float64, n)
	for i, w := range weights.Weights {
		symbols[i] = w.Symbol
		series[i] = builder.Returns(w.Symbol, dates)
	}

	result := &Result{
		Status:  StatusOK,
		Symbols: symbols,
		Matrix:  make([][]float64, n),
	}
	for i := range result.Matrix {
		result.Matrix[i] = make([]float64, n)
		result.Matrix[i][i] = 1.0
	}

	var corrSum float64
	var corrCount int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			aligned := factors.AlignDates(dates, series[i], series[j])
			corr := math.NaN()
			if len(aligned) >= e.cfg.MinOverlap {
				corr = formulas.Correlation(factors.Sample(series[i], aligned), factors.Sample(series[j], aligned))
			}

			if math.IsNaN(corr) {
				result.Flagged = append(result.Flagged, FlaggedPair{A: symbols[i], B: symbols[j], Observations: len(aligned)})
			} else {
				corr = formulas.Clamp(corr, -1, 1)
				corrSum += corr
				corrCount++
				result.TopPairs = append(result.TopPairs, Pair{A: symbols[i], B: symbols[j], Correlation: corr})
			}
			result.Matrix[i][j] = corr
			result.Matrix[j][i] = corr
		}
	}

	if corrCount > 0 {
		result.AvgCorrelation = corrSum / float64(corrCount)
	}

	sort.Slice(result.TopPairs, func(a, b int) bool {
		return result.TopPairs[a].Correlation > result.TopPairs[b].Correlation
	})
	if len(result.TopPairs) > e.cfg.TopN {
		result.TopPairs = result.TopPairs[:e.cfg.TopN]
	}

	result.Clusters = e.clusters(symbols, result.Matrix)
	result.HHI, result.EffectivePositions = Concentration(weights)

	if len(result.Flagged) > 0 {
		e.log.Debug().Int("flagged_pairs", len(result.Flagged)).Msg("Pairs with undefined correlation")
	}

	return result
}

// clusters finds connected components over edges with |corr| at or above the
// threshold, keeping only components with at least two members.
func (e *Engine) clusters(symbols []string, matrix [][]float64) [][]string {
	n := len(symbols)
	visited := make([]bool, n)
	var out [][]string

	for start := 0; start < n; start++ {
		if visited[start] {
			continue
		}
		// BFS from start
		component := []int{start}
		visited[start] = true
		for queue := []int{start}; len(queue) > 0; {
			i := queue[0]
			queue = queue[1:]
			for j := 0; j < n; j++ {
				if visited[j] || j == i {
					continue
				}
				corr := matrix[i][j]
				if !math.IsNaN(corr) && math.Abs(corr) >= e.cfg.ClusterThreshold {
					visited[j] = true
					component = append(component, j)
					queue = append(queue, j)
				}
			}
		}

		if len(component) >= 2 {
			sort.Ints(component)
			members := make([]string, len(component))
			for k, idx := range component {
				members[k] = symbols[idx]
			}
			out = append(out, members)
		}
	}

	return out
}

// Concentration computes the HHI on the 0..10,000 scale and the effective
// number of independent positions from resolved weights. N equal-weighted
// positions give HHI 10,000/N exactly.
func Concentration(weights portfolio.WeightSet) (hhi, effective float64) {
	for _, w := range weights.Weights {
		hhi += w.Weight * w.Weight
	}
	hhi *= 10_000
	if hhi > 0 {
		effective = 10_000 / hhi
	}
	return hhi, effective
}
