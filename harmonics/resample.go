package harmonics

import (
	"math"
	"sort"
	"time"

	"github.com/lucasjlepore/activity-harmonics/activity"
)

// categorical columns carried through resampling by first value / forward fill.
var categoricalColumns = []string{"subject", "activity", "detail", "segment", "window"}

// Series is a uniformly spaced, column-oriented view of one window.
type Series struct {
	Step     time.Duration
	Times    []time.Time
	Channels map[string][]float64
	Attrs    map[string][]string
}

// Len returns the number of ticks.
func (s *Series) Len() int { return len(s.Times) }

// GridLength returns the number of ticks Resample would produce for samples
// without allocating the grid.
func GridLength(samples []activity.Sample, step time.Duration) int {
	if len(samples) == 0 {
		return 0
	}
	if step <= 0 {
		step = time.Second
	}
	first, last := samples[0].Timestamp, samples[0].Timestamp
	for _, s := range samples[1:] {
		if s.Timestamp.Before(first) {
			first = s.Timestamp
		}
		if s.Timestamp.After(last) {
			last = s.Timestamp
		}
	}
	return int(last.Sub(first.Truncate(step))/step) + 1
}

// Resample aligns samples onto a regular grid of the given step.
//
// Ticks start at the earliest timestamp truncated to step. Numeric channels are
// averaged per tick; categorical columns keep the first value seen in the tick.
// Empty ticks are then filled: numeric channels by linear interpolation between
// known ticks (holding the last value after the final known tick), categorical
// columns by forward fill. Numeric ticks before the first known value stay NaN.
func Resample(samples []activity.Sample, channels []string, step time.Duration) *Series {
	if step <= 0 {
		step = time.Second
	}
	out := &Series{
		Step:     step,
		Channels: make(map[string][]float64, len(channels)),
		Attrs:    make(map[string][]string, len(categoricalColumns)),
	}
	if len(samples) == 0 {
		for _, ch := range channels {
			out.Channels[ch] = []float64{}
		}
		return out
	}

	sorted := make([]activity.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	origin := sorted[0].Timestamp.Truncate(step)
	last := sorted[len(sorted)-1].Timestamp
	ticks := int(last.Sub(origin)/step) + 1

	out.Times = make([]time.Time, ticks)
	for i := range out.Times {
		out.Times[i] = origin.Add(time.Duration(i) * step)
	}

	sums := make(map[string][]float64, len(channels))
	counts := make(map[string][]int, len(channels))
	for _, ch := range channels {
		sums[ch] = make([]float64, ticks)
		counts[ch] = make([]int, ticks)
	}
	attrs := make(map[string][]string, len(categoricalColumns))
	attrSeen := make(map[string][]bool, len(categoricalColumns))
	for _, col := range categoricalColumns {
		attrs[col] = make([]string, ticks)
		attrSeen[col] = make([]bool, ticks)
	}

	for _, s := range sorted {
		tick := int(s.Timestamp.Sub(origin) / step)
		for _, ch := range channels {
			v, ok := s.Channels[ch]
			if !ok || math.IsNaN(v) {
				continue
			}
			sums[ch][tick] += v
			counts[ch][tick]++
		}
		for _, col := range categoricalColumns {
			if attrSeen[col][tick] {
				continue
			}
			v, _ := s.Attr(col)
			attrs[col][tick] = v
			attrSeen[col][tick] = true
		}
	}

	for _, ch := range channels {
		values := make([]float64, ticks)
		for i := range values {
			if counts[ch][i] == 0 {
				values[i] = math.NaN()
				continue
			}
			values[i] = sums[ch][i] / float64(counts[ch][i])
		}
		interpolateLinear(values)
		out.Channels[ch] = values
	}
	for _, col := range categoricalColumns {
		forwardFill(attrs[col], attrSeen[col])
		out.Attrs[col] = attrs[col]
	}
	return out
}

// interpolateLinear fills interior NaN runs linearly and trailing runs with the
// last known value. Leading NaN values are left untouched.
func interpolateLinear(values []float64) {
	prev := -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			span := float64(i - prev)
			for j := prev + 1; j < i; j++ {
				frac := float64(j-prev) / span
				values[j] = values[prev] + (v-values[prev])*frac
			}
		}
		prev = i
	}
	if prev < 0 {
		return
	}
	for j := prev + 1; j < len(values); j++ {
		values[j] = values[prev]
	}
}

func forwardFill(values []string, seen []bool) {
	have := false
	last := ""
	for i := range values {
		if seen[i] {
			last = values[i]
			have = true
			continue
		}
		if have {
			values[i] = last
		}
	}
}

// FillLeading replaces every NaN left in the given columns with 0.
func FillLeading(columns map[string][]float64) {
	for _, values := range columns {
		for i, v := range values {
			if math.IsNaN(v) {
				values[i] = 0
			}
		}
	}
}
