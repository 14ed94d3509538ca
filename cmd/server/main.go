package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/leadflow/internal/config"
	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/JonMunkholm/leadflow/internal/logging"
	"github.com/JonMunkholm/leadflow/internal/store"
	"github.com/JonMunkholm/leadflow/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"max_sessions", cfg.Import.MaxSessions,
		"max_concurrent_commits", cfg.Import.MaxConcurrentCommits,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	leads, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open lead store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer leads.Close()
	slog.Info("connected to lead store", "driver", cfg.Store.Driver)

	service, err := core.NewService(leads, core.Options{
		MaxFileSize:     cfg.Import.MaxFileSize,
		MaxRows:         cfg.Import.MaxRows,
		MaxSessions:     cfg.Import.MaxSessions,
		SessionTTL:      cfg.Import.SessionTTL,
		PreviewRowLimit: cfg.Import.PreviewRowLimit,
		Defaults: core.CommitDefaults{
			Status: cfg.Import.DefaultStatus,
			Source: cfg.Import.SourceTag,
		},
		MaxConcurrentCommits: cfg.Import.MaxConcurrentCommits,
		CommitWaitTime:       cfg.Import.CommitWaitTime,
		CommitTimeout:        cfg.Import.CommitTimeout,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartSweeper(jobCtx, cfg.Import.SweepInterval)

	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests first, then let running commits finish.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for commits to complete", "active", status.Active)
			if err := service.WaitForCommits(shutdownCtx); err != nil {
				slog.Warn("commits did not complete in time", "error", err)
			} else {
				slog.Info("all commits completed")
			}
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		cancelJobs()
		leads.Close()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
