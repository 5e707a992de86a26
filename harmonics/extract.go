package harmonics

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucasjlepore/activity-harmonics/activity"
)

// Options configures harmonic feature extraction.
type Options struct {
	Channels  []string
	Harmonics int
	// Resample is the grid granularity; zero means one second.
	Resample time.Duration
	// GroupBy selects a categorical column (subject, activity, detail, segment,
	// window) whose values are extracted independently and concatenated.
	GroupBy string
	// Seed feeds the outlier replacement noise. Each window or group derives its
	// own generator from Seed and its key.
	Seed    uint64
	Workers int
	// MaxTicks caps the resampled length of one window or group; zero means
	// DefaultMaxTicks.
	MaxTicks int
	Logger   *slog.Logger
}

// DefaultMaxTicks is one week of one-second ticks.
const DefaultMaxTicks = 7 * 24 * 60 * 60

// maxColumnsPerTick bounds ticks*(harmonics+2) per channel to MaxTicks times this.
const maxColumnsPerTick = 64

func (o Options) withDefaults() Options {
	if o.Resample <= 0 {
		o.Resample = time.Second
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.MaxTicks <= 0 {
		o.MaxTicks = DefaultMaxTicks
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.Channels = uniqueChannels(o.Channels)
	return o
}

func (o Options) validate() error {
	if len(o.Channels) == 0 {
		return ErrNoChannels
	}
	if o.Harmonics < 1 {
		return fmt.Errorf("%w: n=%d", ErrInvalidHarmonics, o.Harmonics)
	}
	if o.GroupBy != "" {
		if _, ok := (activity.Sample{}).Attr(o.GroupBy); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownGroupColumn, o.GroupBy)
		}
	}
	return nil
}

// Extract runs resampling, outlier replacement, normalization and harmonic
// decomposition over samples and returns the feature table.
//
// With GroupBy set, samples are split by that column and every group runs the
// whole pipeline on its own; groups are merged in key order and groups without
// output are skipped. Configuration errors are returned as errors. A group that
// fails for other reasons, such as ErrSeriesTooLong, is reported and skipped;
// in single mode that error is returned. A channel that fails decomposition is
// dropped from its group and noted in the report.
func Extract(ctx context.Context, samples []activity.Sample, opts Options) (*FeatureTable, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.GroupBy == "" {
		key := ""
		if len(samples) > 0 {
			key = samples[0].Window
		}
		return extractGroup(key, "", samples, opts)
	}

	groups := make(map[string][]activity.Sample)
	for _, s := range samples {
		k, _ := s.Attr(opts.GroupBy)
		groups[k] = append(groups[k], s)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]*FeatureTable, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, k := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			table, err := extractGroup(k, k, groups[k], opts)
			if err != nil {
				if IsFatal(err) {
					return fmt.Errorf("group %q: %w", k, err)
				}
				opts.Logger.Warn("group extraction failed", "group_by", opts.GroupBy, "group", k, "error", err)
				table = &FeatureTable{Reports: []GroupReport{{Key: k, Error: err.Error()}}}
			}
			results[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &FeatureTable{}
	for i, table := range results {
		if table.Empty() {
			opts.Logger.Debug("group produced no features", "group_by", opts.GroupBy, "group", keys[i])
			out.Reports = append(out.Reports, table.Reports...)
			continue
		}
		out.Append(table)
	}
	return out, nil
}

func extractGroup(key, group string, samples []activity.Sample, opts Options) (*FeatureTable, error) {
	report := GroupReport{Key: key}
	ticks := GridLength(samples, opts.Resample)
	if ticks == 0 {
		return &FeatureTable{Reports: []GroupReport{report}}, nil
	}
	if ticks > opts.MaxTicks {
		return nil, fmt.Errorf("%w: %d ticks exceeds limit %d", ErrSeriesTooLong, ticks, opts.MaxTicks)
	}
	if opts.Harmonics > ticks {
		return nil, fmt.Errorf("%w: n=%d exceeds resampled length %d", ErrInvalidHarmonics, opts.Harmonics, ticks)
	}
	if ticks*(opts.Harmonics+2) > opts.MaxTicks*maxColumnsPerTick {
		return nil, fmt.Errorf("%w: %d ticks with %d harmonics exceeds limit", ErrSeriesTooLong, ticks, opts.Harmonics)
	}

	series := Resample(samples, opts.Channels, opts.Resample)
	length := series.Len()

	noise := newNoise(rand.NewPCG(opts.Seed, keyHash(key)))
	report.Outliers = make(map[string]int)
	for _, ch := range opts.Channels {
		replaced, mask := ReplaceOutliers(series.Channels[ch], noise)
		series.Channels[ch] = replaced
		if n := countTrue(mask); n > 0 {
			report.Outliers[ch] = n
		}
	}

	normalized, retained, degenerate := NormalizeChannels(series, opts.Channels)
	FillLeading(normalized)
	report.Degenerate = degenerate

	decomposed := make(map[string]*Decomposition, len(retained))
	kept := make([]string, 0, len(retained))
	report.R2 = make(map[string]float64)
	report.R2Fit = make(map[string]float64)
	for _, ch := range retained {
		dec, err := Decompose(normalized[ch], opts.Harmonics)
		if err != nil {
			if IsFatal(err) {
				return nil, err
			}
			opts.Logger.Warn("channel dropped", "key", key, "channel", ch, "error", err)
			if report.Error != "" {
				report.Error += "; "
			}
			report.Error += fmt.Sprintf("%s: %v", ch, err)
			continue
		}
		decomposed[ch] = dec
		kept = append(kept, ch)
		if r2 := R2(normalized[ch], dec.Reconstruction); isFinite(r2) {
			report.R2[ch] = r2
		}
		if r2 := R2Fit(normalized[ch], dec.Reconstruction); isFinite(r2) {
			report.R2Fit[ch] = r2
		}
	}
	report.Retained = kept
	if len(kept) == 0 {
		return &FeatureTable{Reports: []GroupReport{report}}, nil
	}

	columns := make([]string, 0, len(kept)*(opts.Harmonics+2))
	for _, ch := range kept {
		columns = append(columns, PreprocessedColumn(ch))
		for h := 1; h <= opts.Harmonics; h++ {
			columns = append(columns, HarmonicColumn(ch, h))
		}
		columns = append(columns, ReconstructedColumn(ch))
	}

	rows := make([]FeatureRow, length)
	for i := 0; i < length; i++ {
		values := make(map[string]float64, len(columns))
		for _, ch := range kept {
			dec := decomposed[ch]
			values[PreprocessedColumn(ch)] = normalized[ch][i]
			for h, wave := range dec.Harmonics {
				values[HarmonicColumn(ch, h+1)] = wave[i]
			}
			values[ReconstructedColumn(ch)] = dec.Reconstruction[i]
		}
		rows[i] = FeatureRow{
			Index:     i,
			Timestamp: series.Times[i],
			Detail:    series.Attrs["detail"][i],
			Segment:   series.Attrs["segment"][i],
			Window:    series.Attrs["window"][i],
			Group:     group,
			Values:    values,
		}
	}
	report.Rows = length
	return &FeatureTable{Columns: columns, Rows: rows, Reports: []GroupReport{report}}, nil
}

func keyHash(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

func countTrue(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}

func uniqueChannels(channels []string) []string {
	seen := make(map[string]bool, len(channels))
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out
}
