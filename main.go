package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"activity-sync/internal/auth"
	"activity-sync/internal/backend"
	"activity-sync/internal/config"
	"activity-sync/internal/database"
	"activity-sync/internal/engine"
	"activity-sync/internal/handlers"
	"activity-sync/internal/health"
	"activity-sync/internal/metrics"
	"activity-sync/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting activity-sync",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
		"platform", cfg.HealthPlatform,
		"backend", cfg.BackendURL,
		"log_level", cfg.LogLevel)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("Database opened successfully")

	source, err := health.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to create health source", "error", err)
		os.Exit(1)
	}

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, cfg.BackendMaxRetries, logger)
	authManager := auth.NewManager(db, cfg.AuthToken, logger)

	syncEngine := engine.New(db, source, backendClient, authManager, engine.Options{
		FreezeWatermarkOnSourceFailure: cfg.FreezeWatermarkOnSourceFailure,
		SyncWindowOverlap:              cfg.SyncWindowOverlap,
		DeviceLookback:                 cfg.DeviceLookback,
		Logger:                         logger,
	})

	mux := handlers.NewMux(
		handlers.NewSyncHandler(syncEngine),
		handlers.NewSessionHandler(authManager, syncEngine),
		db,
		cfg.ControlAPIKey,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
		// A sync can run several backend retries
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	workerInstance, err := worker.NewWorker(syncEngine, cfg)
	if err != nil {
		logger.Error("Failed to create worker", "error", err)
		os.Exit(1)
	}
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := workerInstance.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Sync worker failed", "error", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		go func() {
			logger.Info("Starting queue depth collector")
			metrics.StartQueueDepthCollector(workerCtx, db, 15*time.Second)
		}()

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("Control API listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Control API failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Control API shutdown failed", "error", err)
	}

	workerCancel()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("Worker did not stop before shutdown deadline")
	}

	// A cycle outlives the request or tick that started it; let it commit
	// before the deferred db.Close runs
	syncEngine.Close()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Server stopped")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
