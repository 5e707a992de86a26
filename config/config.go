package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lucasjlepore/activity-harmonics/activity"
)

const (
	defaultHarmonics  = 5
	defaultResample   = time.Second
	defaultListenAddr = ":8080"
	defaultLogLevel   = "info"
)

// Config holds runtime settings shared by the CLI and the HTTP daemon.
type Config struct {
	Partition   activity.Config
	Harmonics   int
	Resample    time.Duration
	Channels    []string
	Workers     int
	Seed        uint64
	DatabaseURL string
	ListenAddr  string
	LogLevel    string
	LogJSON     bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		Partition:  activity.DefaultConfig(),
		Harmonics:  defaultHarmonics,
		Resample:   defaultResample,
		Workers:    runtime.NumCPU(),
		ListenAddr: defaultListenAddr,
		LogLevel:   defaultLogLevel,
	}

	if v := env("HARMONICS_GAP_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid HARMONICS_GAP_SECONDS: %w", err)
		}
		cfg.Partition.GapThreshold = time.Duration(secs) * time.Second
	}
	for _, size := range []struct {
		key string
		dst *int
	}{
		{"HARMONICS_WINDOW_TOTAL", &cfg.Partition.WindowTotal},
		{"HARMONICS_TRAIN_SIZE", &cfg.Partition.TrainSize},
		{"HARMONICS_CALIB_SIZE", &cfg.Partition.CalibSize},
		{"HARMONICS_VALID_SIZE", &cfg.Partition.ValidSize},
		{"HARMONICS_N", &cfg.Harmonics},
		{"HARMONICS_WORKERS", &cfg.Workers},
	} {
		v := env(size.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", size.key, err)
		}
		*size.dst = n
	}

	if v := env("HARMONICS_RESAMPLE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid HARMONICS_RESAMPLE: %w", err)
		}
		cfg.Resample = d
	}
	if v := env("HARMONICS_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid HARMONICS_SEED: %w", err)
		}
		cfg.Seed = seed
	}
	cfg.Channels = SplitList(env("HARMONICS_CHANNELS"))

	cfg.DatabaseURL = env("DATABASE_URL")
	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	format := env("LOG_FORMAT")
	cfg.LogJSON = format == "" || strings.EqualFold(format, "json")

	return cfg, nil
}

// Validate rejects settings no run can use.
func (c Config) Validate() error {
	if err := c.Partition.Validate(); err != nil {
		return err
	}
	if c.Harmonics < 1 {
		return fmt.Errorf("harmonics must be >= 1, got %d", c.Harmonics)
	}
	if c.Resample <= 0 {
		return fmt.Errorf("resample granularity must be positive, got %s", c.Resample)
	}
	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
