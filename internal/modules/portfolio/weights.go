package portfolio

// ValueSource records which value the weight of a position was derived from,
// so callers can tell real market-value weights from entry-price estimates.
type ValueSource string

const (
	ValueSourceMarket ValueSource = "market"
	ValueSourceEntry  ValueSource = "entry"
	ValueSourceNone   ValueSource = "none"
)

// PositionWeight is one position's share of resolvable portfolio value
type PositionWeight struct {
	Symbol string
	Value  float64
	Weight float64
	Source ValueSource
}

// WeightSet is the resolved weighting of a portfolio. Weights sum to 1 over
// positions with a resolvable value; positions without one are excluded and
// listed separately.
type WeightSet struct {
	Weights    []PositionWeight
	TotalValue float64
	Excluded   []string // symbols with no resolvable value
}

// Empty reports whether no position had a resolvable value
func (w WeightSet) Empty() bool {
	return len(w.Weights) == 0
}

// WeightFor returns the weight of one symbol, 0 when excluded
func (w WeightSet) WeightFor(symbol string) float64 {
	for _, pw := range w.Weights {
		if pw.Symbol == symbol {
			return pw.Weight
		}
	}
	return 0
}

// ResolveWeights derives portfolio weights with the two-step value
// resolution: market value first, quantity times entry price as fallback.
// An all-zero portfolio resolves to an empty set, never to NaN weights.
func ResolveWeights(positions []Position) WeightSet {
	var set WeightSet

	for _, p := range positions {
		value, source := p.Value()
		if source == ValueSourceNone {
			set.Excluded = append(set.Excluded, p.Symbol)
			continue
		}
		set.Weights = append(set.Weights, PositionWeight{
			Symbol: p.Symbol,
			Value:  value,
			Source: source,
		})
		set.TotalValue += value
	}

	if set.TotalValue <= 0 {
		return WeightSet{Excluded: set.Excluded}
	}

	for i := range set.Weights {
		set.Weights[i].Weight = set.Weights[i].Value / set.TotalValue
	}

	return set
}
