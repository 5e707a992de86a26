package activity

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultGapThreshold tolerates the nominal 30 s cadence plus jitter.
	DefaultGapThreshold = 33 * time.Second
	DefaultWindowTotal  = 1500
	DefaultTrainSize    = 900
	DefaultCalibSize    = 300
	DefaultValidSize    = 300
)

// ErrInvalidConfig reports window sizes or thresholds that cannot be partitioned.
var ErrInvalidConfig = errors.New("invalid partition config")

// Sample is one timestamped reading with its categorical descriptors.
type Sample struct {
	Timestamp time.Time          `json:"timestamp"`
	Subject   string             `json:"subject"`
	Activity  string             `json:"activity"`
	Detail    string             `json:"detail"`
	Channels  map[string]float64 `json:"channels"`

	// Segment and Window are filled in by the segmenter and partitioner.
	Segment string `json:"segment,omitempty"`
	Window  string `json:"window,omitempty"`
}

// Key returns the base composite identity of the sample.
func (s Sample) Key() ActivityKey {
	return ActivityKey{Activity: s.Activity, Detail: s.Detail, Subject: s.Subject}
}

// Attr returns a categorical column by name. Unknown names return "", false.
func (s Sample) Attr(name string) (string, bool) {
	switch name {
	case "subject":
		return s.Subject, true
	case "activity":
		return s.Activity, true
	case "detail", "activity_detail":
		return s.Detail, true
	case "segment":
		return s.Segment, true
	case "window", "partition":
		return s.Window, true
	}
	return "", false
}

// ActivityKey groups samples of one subject performing one activity.
// Episode is zero for the base identity and >= 1 once gap splitting ran.
type ActivityKey struct {
	Activity string
	Detail   string
	Subject  string
	Episode  int
}

// Base returns the key without its sub-episode ordinal.
func (k ActivityKey) Base() ActivityKey {
	k.Episode = 0
	return k
}

// labelEscaper keeps "_" free for joining key parts, so distinct keys never
// render to the same label.
var labelEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

func (k ActivityKey) String() string {
	base := labelEscaper.Replace(k.Subject) + "_" + labelEscaper.Replace(k.Activity) + "_" + labelEscaper.Replace(k.Detail)
	if k.Episode == 0 {
		return base
	}
	return base + "_" + strconv.Itoa(k.Episode)
}

// Segment is a maximal run of samples sharing one gap-split identity.
type Segment struct {
	Key     ActivityKey
	Samples []Sample
}

// ID is the segment identity carried on every sample of the segment.
func (s Segment) ID() string { return s.Key.String() }

// Kind tells which collection a window belongs to.
type Kind string

const (
	KindTrain       Kind = "train"
	KindCalibration Kind = "calibration"
	KindValidation  Kind = "validation"
)

// Window is a fixed-length, time-ascending slice of a segment.
type Window struct {
	Label   string
	Segment string
	Ordinal int
	Kind    Kind
	Samples []Sample
}

// Start returns the first timestamp of the window.
func (w Window) Start() time.Time {
	if len(w.Samples) == 0 {
		return time.Time{}
	}
	return w.Samples[0].Timestamp
}

// End returns the last timestamp of the window.
func (w Window) End() time.Time {
	if len(w.Samples) == 0 {
		return time.Time{}
	}
	return w.Samples[len(w.Samples)-1].Timestamp
}

// Config holds the segmentation and partitioning parameters.
type Config struct {
	GapThreshold time.Duration
	WindowTotal  int
	TrainSize    int
	CalibSize    int
	ValidSize    int
}

// DefaultConfig returns the 33 s / 1500 = 900+300+300 layout.
func DefaultConfig() Config {
	return Config{
		GapThreshold: DefaultGapThreshold,
		WindowTotal:  DefaultWindowTotal,
		TrainSize:    DefaultTrainSize,
		CalibSize:    DefaultCalibSize,
		ValidSize:    DefaultValidSize,
	}
}

// Validate checks that the three sub-windows tile one block exactly.
func (c Config) Validate() error {
	if c.GapThreshold <= 0 {
		return fmt.Errorf("%w: gap threshold must be positive, got %s", ErrInvalidConfig, c.GapThreshold)
	}
	if c.TrainSize <= 0 || c.CalibSize <= 0 || c.ValidSize <= 0 {
		return fmt.Errorf("%w: window sizes must be positive (train=%d calib=%d valid=%d)", ErrInvalidConfig, c.TrainSize, c.CalibSize, c.ValidSize)
	}
	if c.TrainSize+c.CalibSize+c.ValidSize != c.WindowTotal {
		return fmt.Errorf("%w: train+calib+valid=%d does not match window total %d", ErrInvalidConfig, c.TrainSize+c.CalibSize+c.ValidSize, c.WindowTotal)
	}
	return nil
}

// Partitions are the three disjoint window collections of one run.
type Partitions struct {
	Train       []Window
	Calibration []Window
	Validation  []Window
	Stats       Stats
}

// Stats summarises what segmentation and partitioning kept and dropped.
type Stats struct {
	Samples           int `json:"samples"`
	Segments          int `json:"segments"`
	SegmentsKept      int `json:"segments_kept"`
	Blocks            int `json:"blocks"`
	SamplesDiscarded  int `json:"samples_discarded"`
	ShortSegmentCount int `json:"short_segment_count"`
}

// ChannelNames returns the sorted union of channel names carried by samples.
func ChannelNames(samples []Sample) []string {
	seen := make(map[string]bool)
	for _, s := range samples {
		for name := range s.Channels {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
