package harmonics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// quantile interpolates linearly between order statistics at position p*(n-1).
// Non-finite values are ignored. It returns NaN when nothing finite is left.
func quantile(values []float64, p float64) float64 {
	sorted := finiteOnly(values)
	if len(sorted) == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := p * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	weight := pos - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func finiteOnly(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// R2 is the coefficient of determination 1 - SSres/SStot of predicted against
// observed. A reconstruction off in scale scores below one.
func R2(observed, predicted []float64) float64 {
	if len(observed) != len(predicted) || len(observed) < 2 {
		return math.NaN()
	}
	return stat.RSquaredFrom(predicted, observed, nil)
}

// R2Fit is the R2 of a least-squares line fitting observed from predicted. It
// equals the squared correlation and ignores scale and offset.
func R2Fit(observed, predicted []float64) float64 {
	if len(observed) != len(predicted) || len(observed) < 2 {
		return math.NaN()
	}
	alpha, beta := stat.LinearRegression(predicted, observed, nil, false)
	return stat.RSquared(predicted, observed, nil, alpha, beta)
}
