package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lucasjlepore/activity-harmonics/activity"
	"github.com/lucasjlepore/activity-harmonics/harmonics"
	"github.com/lucasjlepore/activity-harmonics/ingest"
	"github.com/lucasjlepore/activity-harmonics/store"
)

const defaultHarmonics = 5

// ErrNoWindows is returned when no segment is long enough for a single window.
var ErrNoWindows = errors.New("no windows produced")

// Run executes ingest, partitioning and harmonic extraction and writes all artifacts.
func Run(ctx context.Context, opts Options) (*Result, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	log := opts.Logger

	samples, err := readInput(opts)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples found in %s", opts.InputPath)
	}
	if len(opts.Channels) == 0 {
		opts.Channels = activity.ChannelNames(samples)
	}
	log.Info("input loaded", "path", opts.InputPath, "samples", len(samples), "channels", len(opts.Channels))

	parts, err := activity.SegmentAndPartition(samples, opts.Partition)
	if err != nil {
		return nil, err
	}
	log.Info("windows partitioned",
		"segments", parts.Stats.Segments,
		"segments_kept", parts.Stats.SegmentsKept,
		"blocks", parts.Stats.Blocks,
		"samples_discarded", parts.Stats.SamplesDiscarded,
	)
	if len(parts.Train) == 0 {
		return nil, fmt.Errorf("%w: no segment reaches %d samples", ErrNoWindows, opts.Partition.WindowTotal)
	}

	if err := ensureOutputDir(opts.OutDir, opts.Overwrite); err != nil {
		return nil, err
	}

	table, warnings, err := extractTrain(ctx, parts.Train, opts)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	res := &Result{
		RunID:       runID.String(),
		OutputDir:   opts.OutDir,
		FeatureRows: len(table.Rows),
		Warnings:    warnings,
	}

	res.FeaturesPath = filepath.Join(opts.OutDir, "features."+formatExtension(opts.Format))
	switch opts.Format {
	case "csv":
		if err := writeFeaturesCSV(res.FeaturesPath, table); err != nil {
			return nil, fmt.Errorf("write features csv: %w", err)
		}
	case "parquet":
		if err := writeFeaturesParquet(res.FeaturesPath, table); err != nil {
			return nil, fmt.Errorf("write features parquet: %w", err)
		}
	}

	res.WindowsPath = filepath.Join(opts.OutDir, "windows.json")
	if err := writeJSON(res.WindowsPath, WindowIndex(parts)); err != nil {
		return nil, fmt.Errorf("write windows.json: %w", err)
	}

	res.CalibrationPath = filepath.Join(opts.OutDir, "calibration_windows.csv")
	if err := writeWindowSamplesCSV(res.CalibrationPath, parts.Calibration, opts.Channels); err != nil {
		return nil, fmt.Errorf("write calibration windows: %w", err)
	}
	res.ValidationPath = filepath.Join(opts.OutDir, "validation_windows.csv")
	if err := writeWindowSamplesCSV(res.ValidationPath, parts.Validation, opts.Channels); err != nil {
		return nil, fmt.Errorf("write validation windows: %w", err)
	}

	summary := buildRunSummary(runID.String(), opts, parts, table, warnings)
	res.SummaryPath = filepath.Join(opts.OutDir, "run_summary.json")
	if err := writeJSON(res.SummaryPath, summary); err != nil {
		return nil, fmt.Errorf("write run_summary.json: %w", err)
	}

	if opts.DatabaseURL != "" {
		n, err := storeFeatures(ctx, opts, runID, summary, table)
		if err != nil {
			return nil, err
		}
		res.StoredFeatureCells = n
		log.Info("features stored", "run_id", res.RunID, "cells", n)
	}

	log.Info("run complete", "run_id", res.RunID, "feature_rows", res.FeatureRows, "failed_windows", summary.FailedWindows)
	return res, nil
}

func (o Options) normalize() (Options, error) {
	if strings.TrimSpace(o.InputPath) == "" {
		return o, fmt.Errorf("input path is required")
	}
	if strings.TrimSpace(o.OutDir) == "" {
		return o, fmt.Errorf("output directory is required")
	}
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	if o.Format == "" {
		o.Format = "parquet"
	}
	if o.Format != "parquet" && o.Format != "csv" {
		return o, fmt.Errorf("unsupported format %q (expected parquet|csv)", o.Format)
	}
	o.InputFormat = strings.ToLower(strings.TrimSpace(o.InputFormat))
	if o.InputFormat == "" {
		o.InputFormat = inferInputFormat(o.InputPath)
	}
	if o.InputFormat != "csv" && o.InputFormat != "fit" {
		return o, fmt.Errorf("unsupported input format %q (expected csv|fit)", o.InputFormat)
	}
	if o.Partition == (activity.Config{}) {
		o.Partition = activity.DefaultConfig()
	}
	if err := o.Partition.Validate(); err != nil {
		return o, err
	}
	if o.Harmonics == 0 {
		o.Harmonics = defaultHarmonics
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o, nil
}

func inferInputFormat(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".fit") {
		return "fit"
	}
	return "csv"
}

func readInput(opts Options) ([]activity.Sample, error) {
	switch opts.InputFormat {
	case "fit":
		samples, err := ingest.ReadFITFile(opts.InputPath, opts.FIT)
		if err != nil {
			return nil, fmt.Errorf("read fit input: %w", err)
		}
		return samples, nil
	default:
		csvOpts := opts.CSV
		if len(csvOpts.Channels) == 0 {
			csvOpts.Channels = opts.Channels
		}
		samples, err := ingest.ReadCSVFile(opts.InputPath, csvOpts)
		if err != nil {
			return nil, fmt.Errorf("read csv input: %w", err)
		}
		return samples, nil
	}
}

// extractTrain runs extraction over the train windows. Without GroupBy each
// window runs on its own worker and a window that fails for non-config reasons
// is recorded and skipped. With GroupBy the train samples are extracted in one
// multi-group call.
func extractTrain(ctx context.Context, windows []activity.Window, opts Options) (*harmonics.FeatureTable, []string, error) {
	hopts := harmonics.Options{
		Channels:  opts.Channels,
		Harmonics: opts.Harmonics,
		Resample:  opts.Resample,
		GroupBy:   opts.GroupBy,
		Seed:      opts.Seed,
		Workers:   opts.Workers,
		Logger:    opts.Logger,
	}

	if opts.GroupBy != "" {
		var all []activity.Sample
		for _, w := range windows {
			all = append(all, w.Samples...)
		}
		table, err := harmonics.Extract(ctx, all, hopts)
		if err != nil {
			return nil, nil, fmt.Errorf("extract by %s: %w", opts.GroupBy, err)
		}
		var warnings []string
		for _, r := range table.Reports {
			if r.Error != "" {
				warnings = append(warnings, fmt.Sprintf("%s %s: %s", opts.GroupBy, r.Key, r.Error))
			}
		}
		return table, warnings, nil
	}

	hopts.GroupBy = ""
	hopts.Workers = 1
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	results := make([]*harmonics.FeatureTable, len(windows))
	failures := make([]error, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, w := range windows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			table, err := harmonics.Extract(gctx, w.Samples, hopts)
			if err != nil {
				if harmonics.IsFatal(err) {
					return fmt.Errorf("window %s: %w", w.Label, err)
				}
				failures[i] = err
				return nil
			}
			results[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := &harmonics.FeatureTable{}
	var warnings []string
	for i, w := range windows {
		if failures[i] != nil {
			msg := fmt.Sprintf("window %s: %v", w.Label, failures[i])
			opts.Logger.Warn("window extraction failed", "window", w.Label, "error", failures[i])
			warnings = append(warnings, msg)
			out.Reports = append(out.Reports, harmonics.GroupReport{Key: w.Label, Error: failures[i].Error()})
			continue
		}
		if results[i].Empty() {
			opts.Logger.Warn("window produced no features", "window", w.Label)
			warnings = append(warnings, fmt.Sprintf("window %s: no retained channels", w.Label))
			out.Reports = append(out.Reports, results[i].Reports...)
			continue
		}
		out.Append(results[i])
	}
	return out, warnings, nil
}

// WindowIndex lists the train, calibration and validation windows in that order.
func WindowIndex(parts activity.Partitions) WindowIndexFile {
	out := WindowIndexFile{Windows: make([]WindowEntry, 0, parts.Stats.Blocks*3)}
	for _, set := range [][]activity.Window{parts.Train, parts.Calibration, parts.Validation} {
		for _, w := range set {
			out.Windows = append(out.Windows, WindowEntry{
				Label:   w.Label,
				Segment: w.Segment,
				Ordinal: w.Ordinal,
				Kind:    string(w.Kind),
				StartTS: w.Start().UTC().Format(time.RFC3339),
				EndTS:   w.End().UTC().Format(time.RFC3339),
				Samples: len(w.Samples),
			})
		}
	}
	return out
}

func buildRunSummary(runID string, opts Options, parts activity.Partitions, table *harmonics.FeatureTable, warnings []string) RunSummaryFile {
	summary := RunSummaryFile{
		RunID:        runID,
		GeneratedAt:  time.Now().UTC(),
		Source:       filepath.Base(opts.InputPath),
		Channels:     opts.Channels,
		Harmonics:    opts.Harmonics,
		ResampleS:    resampleSeconds(opts.Resample),
		GroupBy:      opts.GroupBy,
		Partition:    parts.Stats,
		TrainWindows: len(parts.Train),
		CalibWindows: len(parts.Calibration),
		ValidWindows: len(parts.Validation),
		FeatureRows:  len(table.Rows),
		Reports:      table.Reports,
		Warnings:     warnings,
	}

	for _, r := range table.Reports {
		if r.Error != "" || len(r.Retained) == 0 {
			summary.FailedWindows++
		}
	}
	summary.MeanR2 = meanByChannel(table.Reports, func(r harmonics.GroupReport) map[string]float64 { return r.R2 })
	summary.MeanR2Fit = meanByChannel(table.Reports, func(r harmonics.GroupReport) map[string]float64 { return r.R2Fit })
	return summary
}

// meanByChannel averages one per-channel report score over all reports that
// carry it. It returns nil when no report does.
func meanByChannel(reports []harmonics.GroupReport, score func(harmonics.GroupReport) map[string]float64) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range reports {
		for ch, v := range score(r) {
			sums[ch] += v
			counts[ch]++
		}
	}
	if len(sums) == 0 {
		return nil
	}
	out := make(map[string]float64, len(sums))
	for ch, s := range sums {
		out[ch] = s / float64(counts[ch])
	}
	return out
}

func storeFeatures(ctx context.Context, opts Options, runID uuid.UUID, summary RunSummaryFile, table *harmonics.FeatureTable) (int64, error) {
	st, err := store.Open(ctx, opts.DatabaseURL)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	if err := st.InsertRun(ctx, store.Run{
		ID:        runID,
		Source:    summary.Source,
		Harmonics: summary.Harmonics,
		Windows:   summary.TrainWindows,
		Failed:    summary.FailedWindows,
	}); err != nil {
		return 0, err
	}
	return st.InsertFeatures(ctx, runID, table)
}

func resampleSeconds(d time.Duration) float64 {
	if d <= 0 {
		return 1
	}
	return d.Seconds()
}

func formatExtension(format string) string {
	if format == "csv" {
		return "csv"
	}
	return "parquet"
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set overwrite=true to allow)", path)
	}
	return nil
}

func valueOrNaN(values map[string]float64, col string) float64 {
	v, ok := values[col]
	if !ok {
		return math.NaN()
	}
	return v
}
