package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lucasjlepore/activity-harmonics/config"
	"github.com/lucasjlepore/activity-harmonics/ingest"
	"github.com/lucasjlepore/activity-harmonics/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	var (
		inPath      = flag.String("in", "", "Path to input .csv or .fit file")
		inFormat    = flag.String("input-format", "", "Input format: csv|fit (default: from extension)")
		outDir      = flag.String("out", "", "Output directory")
		format      = flag.String("format", "parquet", "Feature table format: parquet|csv")
		overwrite   = flag.Bool("overwrite", true, "Allow writing into non-empty output directories")
		channels    = flag.String("channels", strings.Join(cfg.Channels, ","), "Comma separated channels (default: all numeric columns)")
		n           = flag.Int("n", cfg.Harmonics, "Number of harmonics per channel")
		resample    = flag.Duration("resample", cfg.Resample, "Resampling granularity")
		gap         = flag.Duration("gap", cfg.Partition.GapThreshold, "Gap threshold that splits segments")
		groupBy     = flag.String("group-by", "", "Extract train windows grouped by subject|activity|detail|segment|window")
		workers     = flag.Int("workers", cfg.Workers, "Parallel extraction workers")
		seed        = flag.Uint64("seed", cfg.Seed, "Seed for outlier replacement noise")
		subject     = flag.String("subject", "", "Subject label for FIT input (default: file name)")
		activityTag = flag.String("activity", "", "Activity label for FIT input (default: session sport)")
		detail      = flag.String("detail", "", "Activity detail label for FIT input")
		dbURL       = flag.String("database-url", cfg.DatabaseURL, "Postgres URL for the feature sink (optional)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --in session.csv --out outdir [--n 5] [--format parquet|csv] [--group-by window]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*inPath) == "" || strings.TrimSpace(*outDir) == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg.Harmonics = *n
	cfg.Resample = *resample
	cfg.Partition.GapThreshold = *gap
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid settings: %v\n", err)
		os.Exit(2)
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogJSON)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	result, err := pipeline.Run(ctx, pipeline.Options{
		InputPath:   *inPath,
		InputFormat: *inFormat,
		OutDir:      *outDir,
		Format:      *format,
		Overwrite:   *overwrite,
		FIT: ingest.FITOptions{
			Subject:  *subject,
			Activity: *activityTag,
			Detail:   *detail,
		},
		Partition:   cfg.Partition,
		Channels:    config.SplitList(*channels),
		Harmonics:   cfg.Harmonics,
		Resample:    cfg.Resample,
		GroupBy:     *groupBy,
		Seed:        *seed,
		Workers:     *workers,
		DatabaseURL: *dbURL,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "harmonics failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("harmonics complete in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Run id:              %s\n", result.RunID)
	fmt.Printf("Output dir:          %s\n", result.OutputDir)
	fmt.Printf("features:            %s (%d rows)\n", result.FeaturesPath, result.FeatureRows)
	fmt.Printf("windows:             %s\n", result.WindowsPath)
	fmt.Printf("calibration windows: %s\n", result.CalibrationPath)
	fmt.Printf("validation windows:  %s\n", result.ValidationPath)
	fmt.Printf("run summary:         %s\n", result.SummaryPath)
	if result.StoredFeatureCells > 0 {
		fmt.Printf("stored cells:        %d\n", result.StoredFeatureCells)
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning:             %s\n", w)
	}
}
