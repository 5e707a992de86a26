package activity

import (
	"time"
)

// SegmentSamples splits samples into gap-separated episodes per subject/activity/detail.
//
// Deltas are taken against the previous sample of the same group in input order,
// truncated to whole seconds. A sample opens a new episode when its delta is 0
// (always true for the first sample of a group, and for repeated timestamps) or
// when the delta magnitude exceeds gap. Episode ordinals are the running count
// of boundaries within the group, so the first episode is 1.
//
// The returned segments keep input order within each segment and are listed in
// order of first appearance. Input samples are copied, never modified.
func SegmentSamples(samples []Sample, gap time.Duration) []Segment {
	gapSeconds := int64(gap / time.Second)

	type groupState struct {
		last    time.Time
		seen    bool
		episode int
	}
	groups := make(map[ActivityKey]*groupState)
	index := make(map[ActivityKey]int)
	segments := make([]Segment, 0)

	for _, s := range samples {
		base := s.Key()
		st, ok := groups[base]
		if !ok {
			st = &groupState{}
			groups[base] = st
		}

		var delta int64
		if st.seen {
			delta = int64(s.Timestamp.Sub(st.last) / time.Second)
		}
		if isBoundary(delta, gapSeconds) {
			st.episode++
		}
		st.last = s.Timestamp
		st.seen = true

		key := base
		key.Episode = st.episode
		idx, ok := index[key]
		if !ok {
			idx = len(segments)
			index[key] = idx
			segments = append(segments, Segment{Key: key})
		}
		out := s
		out.Segment = key.String()
		segments[idx].Samples = append(segments[idx].Samples, out)
	}
	return segments
}

func isBoundary(deltaSeconds, gapSeconds int64) bool {
	if deltaSeconds == 0 {
		return true
	}
	if deltaSeconds < 0 {
		deltaSeconds = -deltaSeconds
	}
	return deltaSeconds > gapSeconds
}
