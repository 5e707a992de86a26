package pipeline

import (
	"log/slog"
	"time"

	"github.com/lucasjlepore/activity-harmonics/activity"
	"github.com/lucasjlepore/activity-harmonics/harmonics"
	"github.com/lucasjlepore/activity-harmonics/ingest"
)

// Options configures one batch run.
type Options struct {
	InputPath   string
	InputFormat string // csv|fit, inferred from the extension when empty
	OutDir      string
	Format      string // parquet|csv
	Overwrite   bool

	CSV ingest.CSVOptions
	FIT ingest.FITOptions

	Partition activity.Config
	Channels  []string
	Harmonics int
	Resample  time.Duration
	// GroupBy extracts all train samples in one call grouped by this column.
	// Empty runs each train window on its own worker.
	GroupBy string
	Seed    uint64
	Workers int

	// DatabaseURL enables the Postgres feature sink when set.
	DatabaseURL string
	Logger      *slog.Logger
}

// Result returns generated output paths.
type Result struct {
	RunID              string   `json:"run_id"`
	OutputDir          string   `json:"output_dir"`
	FeaturesPath       string   `json:"features_path"`
	WindowsPath        string   `json:"windows_path"`
	CalibrationPath    string   `json:"calibration_path"`
	ValidationPath     string   `json:"validation_path"`
	SummaryPath        string   `json:"summary_path"`
	FeatureRows        int      `json:"feature_rows"`
	StoredFeatureCells int64    `json:"stored_feature_cells,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
}

// WindowIndexFile lists every window of the run.
type WindowIndexFile struct {
	Windows []WindowEntry `json:"windows"`
}

// WindowEntry describes one window without its samples.
type WindowEntry struct {
	Label   string `json:"label"`
	Segment string `json:"segment"`
	Ordinal int    `json:"ordinal"`
	Kind    string `json:"kind"`
	StartTS string `json:"start_ts"`
	EndTS   string `json:"end_ts"`
	Samples int    `json:"samples"`
}

// RunSummaryFile captures run-level counts and per-window extraction reports.
type RunSummaryFile struct {
	RunID         string                  `json:"run_id"`
	GeneratedAt   time.Time               `json:"generated_at"`
	Source        string                  `json:"source"`
	Channels      []string                `json:"channels"`
	Harmonics     int                     `json:"n_harmonics"`
	ResampleS     float64                 `json:"resample_s"`
	GroupBy       string                  `json:"group_by"`
	Partition     activity.Stats          `json:"partition"`
	TrainWindows  int                     `json:"train_windows"`
	CalibWindows  int                     `json:"calibration_windows"`
	ValidWindows  int                     `json:"validation_windows"`
	FeatureRows   int                     `json:"feature_rows"`
	FailedWindows int                     `json:"failed_windows"`
	MeanR2        map[string]float64      `json:"mean_reconstruction_r2,omitempty"`
	MeanR2Fit     map[string]float64      `json:"mean_reconstruction_r2_fit,omitempty"`
	Reports       []harmonics.GroupReport `json:"reports"`
	Warnings      []string                `json:"warnings,omitempty"`
}
