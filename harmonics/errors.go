package harmonics

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHarmonics is returned when the harmonic count is outside 1..len(series).
	ErrInvalidHarmonics = errors.New("invalid harmonic count")

	// ErrNoChannels is returned when extraction is asked for zero channels.
	ErrNoChannels = errors.New("no channels requested")

	// ErrUnknownGroupColumn is returned for a group-by column samples do not carry.
	ErrUnknownGroupColumn = errors.New("unknown group column")

	// ErrSeriesTooLong is returned when a window or group spans more grid ticks
	// than Options.MaxTicks allows.
	ErrSeriesTooLong = errors.New("resampled series too long")
)

// InvalidSeriesError reports a non-finite value reaching the frequency transform.
type InvalidSeriesError struct {
	Index int
	Value float64
}

func (e *InvalidSeriesError) Error() string {
	return fmt.Sprintf("invalid series: non-finite value %v at index %d", e.Value, e.Index)
}

// IsFatal tells whether an extraction error must abort the whole run rather than
// only the window or group that produced it.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidHarmonics) || errors.Is(err, ErrNoChannels) || errors.Is(err, ErrUnknownGroupColumn)
}
