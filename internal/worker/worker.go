package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"activity-sync/internal/config"
	"activity-sync/internal/engine"
	"activity-sync/internal/health/fitexport"
	"activity-sync/internal/metrics"
)

// Syncer runs a sync cycle for a trigger
type Syncer interface {
	RunSync(ctx context.Context, trigger string) engine.SyncResult
}

// Worker fires background sync cycles on a schedule and, optionally,
// when new export files land in the watched directory
type Worker struct {
	syncer   Syncer
	schedule cron.Schedule
	expr     string
	watchDir string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWorker creates a new background sync worker
func NewWorker(syncer Syncer, cfg *config.Config) (*Worker, error) {
	schedule, err := cron.ParseStandard(cfg.SyncSchedule)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_SCHEDULE %q: %w", cfg.SyncSchedule, err)
	}

	w := &Worker{
		syncer:   syncer,
		schedule: schedule,
		expr:     cfg.SyncSchedule,
		debounce: 2 * time.Second,
		logger:   slog.Default(),
	}
	if cfg.WatchExportDir && cfg.HealthPlatform == config.PlatformHealthConnect {
		w.watchDir = cfg.FITExportDir
	}
	return w, nil
}

// Start runs the scheduler until ctx is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker", "schedule", w.expr, "watch_dir", w.watchDir)
	metrics.WorkerActive.Set(1)
	defer metrics.WorkerActive.Set(0)

	cronLogger := &cronLogger{logger: w.logger}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	c.Schedule(w.schedule, cron.FuncJob(func() {
		w.runSync(ctx, metrics.TriggerSchedule)
	}))
	c.Start()
	defer func() {
		// Wait for a scheduled cycle that is already running
		<-c.Stop().Done()
	}()

	if w.watchDir == "" {
		<-ctx.Done()
		w.logger.Info("Stopping worker")
		return ctx.Err()
	}

	err := w.watch(ctx)
	w.logger.Info("Stopping worker")
	return err
}

// watch triggers a sync once new export files stop changing for the debounce period
func (w *Worker) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.watchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.watchDir, err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !fitexport.IsExportFile(filepath.Base(event.Name)) {
				continue
			}
			w.logger.Debug("Export file changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			w.logger.Error("Export directory watch error", "error", err)

		case <-timer.C:
			w.runSync(ctx, metrics.TriggerWatch)
		}
	}
}

func (w *Worker) runSync(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	result := w.syncer.RunSync(ctx, trigger)
	if !result.Success {
		w.logger.Warn("Background sync failed", "trigger", trigger, "error", result.Error)
	}
}

// cronLogger routes scheduler logs through slog
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
