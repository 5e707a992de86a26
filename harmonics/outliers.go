package harmonics

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	iqrFenceFactor   = 1.5
	replacementNoise = 0.1
)

// OutlierFence returns the inclusive [Q1-1.5*IQR, Q3+1.5*IQR] bounds of values.
func OutlierFence(values []float64) (lower, upper float64) {
	q1 := quantile(values, 0.25)
	q3 := quantile(values, 0.75)
	iqr := q3 - q1
	return q1 - iqrFenceFactor*iqr, q3 + iqrFenceFactor*iqr
}

// ReplaceOutliers returns a copy of values where points outside the IQR fence are
// replaced by the mean of the remaining points plus N(0, 0.1) noise drawn from
// noise. Missing values are never flagged and count as 0 in that mean. The mask
// marks replaced positions.
func ReplaceOutliers(values []float64, noise distuv.Normal) ([]float64, []bool) {
	out := make([]float64, len(values))
	copy(out, values)
	mask := make([]bool, len(values))

	lower, upper := OutlierFence(values)
	if math.IsNaN(lower) || math.IsNaN(upper) {
		return out, mask
	}

	sum := 0.0
	kept := 0
	flagged := 0
	for i, v := range values {
		if v < lower || v > upper {
			mask[i] = true
			flagged++
			continue
		}
		if !math.IsNaN(v) {
			sum += v
		}
		kept++
	}
	if flagged == 0 || kept == 0 {
		return out, mask
	}

	mean := sum / float64(kept)
	for i := range out {
		if mask[i] {
			out[i] = mean + noise.Rand()
		}
	}
	return out, mask
}

func newNoise(src rand.Source) distuv.Normal {
	return distuv.Normal{Mu: 0, Sigma: replacementNoise, Src: src}
}
