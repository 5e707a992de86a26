package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lucasjlepore/activity-harmonics/api"
	"github.com/lucasjlepore/activity-harmonics/config"
	"github.com/lucasjlepore/activity-harmonics/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.NewLogger(os.Stderr, "error", true).Error("config error", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogJSON)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid settings", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var st *store.Store
	if cfg.DatabaseURL != "" {
		st, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connection error", "error", err)
			os.Exit(1)
		}
		defer st.Close()
		if err := st.EnsureSchema(ctx); err != nil {
			logger.Error("schema error", "error", err)
			os.Exit(1)
		}
	}

	srv := api.New(cfg, st, logger)
	logger.Info("harmonics API listening", "addr", cfg.ListenAddr, "persistence", st != nil)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
