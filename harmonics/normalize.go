package harmonics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const clipSigmas = 3.0

// Normalize fills missing values with the channel mean, clips to mean±3σ and
// min-max scales into [0, 1]. ok is false when the channel cannot be scaled
// (no values, or every value equal after clipping); such a channel must be left
// out of the window.
func Normalize(values []float64) (out []float64, ok bool) {
	present := finiteOnly(values)
	if len(present) < 2 {
		return nil, false
	}
	mean := stat.Mean(present, nil)

	out = make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			v = mean
		}
		out[i] = v
	}

	mu, sigma := stat.MeanStdDev(out, nil)
	if !math.IsNaN(sigma) {
		lo, hi := mu-clipSigmas*sigma, mu+clipSigmas*sigma
		for i, v := range out {
			out[i] = math.Max(lo, math.Min(hi, v))
		}
	}

	minV, maxV := floats.Min(out), floats.Max(out)
	span := maxV - minV
	if span == 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return nil, false
	}
	for i, v := range out {
		out[i] = (v - minV) / span
	}
	return out, true
}

// NormalizeChannels normalizes each requested channel of s and returns the
// normalized columns, the channels kept, and the degenerate channels dropped.
// The channels slice is only read.
func NormalizeChannels(s *Series, channels []string) (map[string][]float64, []string, []string) {
	normalized := make(map[string][]float64, len(channels))
	degenerate := make(map[string]bool)
	for _, ch := range channels {
		values, ok := Normalize(s.Channels[ch])
		if !ok {
			degenerate[ch] = true
			continue
		}
		normalized[ch] = values
	}

	retained := make([]string, 0, len(channels))
	dropped := make([]string, 0, len(degenerate))
	for _, ch := range channels {
		if degenerate[ch] {
			dropped = append(dropped, ch)
			continue
		}
		retained = append(retained, ch)
	}
	return normalized, retained, dropped
}
