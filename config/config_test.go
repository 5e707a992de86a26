package config

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"HARMONICS_GAP_SECONDS", "HARMONICS_N", "HARMONICS_RESAMPLE", "HARMONICS_CHANNELS", "HARMONICS_SEED", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Partition.GapThreshold != 33*time.Second || cfg.Partition.WindowTotal != 1500 {
		t.Fatalf("unexpected partition defaults %+v", cfg.Partition)
	}
	if cfg.Harmonics != defaultHarmonics || cfg.Resample != time.Second {
		t.Fatalf("unexpected extraction defaults: n=%d resample=%s", cfg.Harmonics, cfg.Resample)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HARMONICS_GAP_SECONDS", "45")
	t.Setenv("HARMONICS_N", "8")
	t.Setenv("HARMONICS_RESAMPLE", "2s")
	t.Setenv("HARMONICS_CHANNELS", "heart_rate, breathing_rate,,")
	t.Setenv("HARMONICS_SEED", "42")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Partition.GapThreshold != 45*time.Second {
		t.Errorf("gap = %s", cfg.Partition.GapThreshold)
	}
	if cfg.Harmonics != 8 || cfg.Resample != 2*time.Second || cfg.Seed != 42 {
		t.Errorf("unexpected overrides %+v", cfg)
	}
	if len(cfg.Channels) != 2 || cfg.Channels[1] != "breathing_rate" {
		t.Errorf("channels = %v", cfg.Channels)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HARMONICS_N", "many")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "HARMONICS_N") {
		t.Fatalf("expected HARMONICS_N error, got %v", err)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", true)
	logger.Info("hidden")
	logger.Warn("shown", "window", "w1")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"window":"w1"`) {
		t.Fatalf("unexpected log output %q", out)
	}
}
