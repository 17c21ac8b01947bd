// Package main is the entry point for the API server. It reads config,
// builds the logger, and hands off to internal/server; all real logic lives
// in imported packages.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/botarena/apiserver/internal/config"
	"github.com/botarena/apiserver/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("loading configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The sqlite driver creates the file but not its directory.
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("creating database directory",
				slog.String("dir", dir), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("initializing server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
