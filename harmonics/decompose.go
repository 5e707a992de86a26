package harmonics

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// Decomposition holds the positional low-frequency harmonics of one series.
type Decomposition struct {
	// Harmonics[i] is the real part of the inverse transform of coefficient i alone.
	Harmonics [][]float64
	// Reconstruction is the real part of the inverse transform of coefficients 0..n-1.
	Reconstruction []float64
}

// Decompose keeps the first n DFT coefficients of values (index 0 is the mean
// term) and inverse-transforms them one at a time and all together.
//
// Coefficients are taken by position, not by magnitude, and without their
// negative-frequency partners. For i > 0 a harmonic is therefore half the
// amplitude of the matching real sinusoid and the reconstruction is a lossy
// low-pass approximation. Callers rely on exactly this output, so it must not
// be made conjugate-symmetric.
func Decompose(values []float64, n int) (*Decomposition, error) {
	length := len(values)
	if n < 1 || n > length {
		return nil, fmt.Errorf("%w: n=%d for series of length %d", ErrInvalidHarmonics, n, length)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &InvalidSeriesError{Index: i, Value: v}
		}
	}

	spectrum := fft.FFTReal(values)

	out := &Decomposition{Harmonics: make([][]float64, n)}
	single := make([]complex128, length)
	for i := 0; i < n; i++ {
		single[i] = spectrum[i]
		out.Harmonics[i] = realPart(fft.IFFT(single))
		single[i] = 0
	}

	truncated := make([]complex128, length)
	copy(truncated, spectrum[:n])
	out.Reconstruction = realPart(fft.IFFT(truncated))
	return out, nil
}

func realPart(values []complex128) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = real(v)
	}
	return out
}
