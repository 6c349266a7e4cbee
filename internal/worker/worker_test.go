package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"activity-sync/internal/config"
	"activity-sync/internal/engine"
	"activity-sync/internal/metrics"
)

type recordingSyncer struct {
	mu       sync.Mutex
	triggers []string
	calls    chan string
}

func newRecordingSyncer() *recordingSyncer {
	return &recordingSyncer{calls: make(chan string, 16)}
}

func (s *recordingSyncer) RunSync(ctx context.Context, trigger string) engine.SyncResult {
	s.mu.Lock()
	s.triggers = append(s.triggers, trigger)
	s.mu.Unlock()
	s.calls <- trigger
	return engine.SyncResult{Success: true}
}

func setupWorkerTest(t *testing.T, schedule string, watch bool) (*Worker, *recordingSyncer, string) {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		SyncSchedule:   schedule,
		HealthPlatform: config.PlatformHealthConnect,
		FITExportDir:   dir,
		WatchExportDir: watch,
	}

	syncer := newRecordingSyncer()
	w, err := NewWorker(syncer, cfg)
	if err != nil {
		t.Fatalf("Failed to create worker: %v", err)
	}
	w.debounce = 50 * time.Millisecond
	return w, syncer, dir
}

func runWorker(t *testing.T, w *Worker) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestNewWorkerRejectsBadSchedule(t *testing.T) {
	cfg := &config.Config{SyncSchedule: "every now and then"}

	if _, err := NewWorker(newRecordingSyncer(), cfg); err == nil {
		t.Error("Expected error for invalid schedule")
	}
}

func TestNewWorkerWatchOnlyForExportPlatform(t *testing.T) {
	cfg := &config.Config{
		SyncSchedule:   "@every 15m",
		HealthPlatform: config.PlatformHealthKit,
		FITExportDir:   t.TempDir(),
		WatchExportDir: true,
	}

	w, err := NewWorker(newRecordingSyncer(), cfg)
	if err != nil {
		t.Fatalf("Failed to create worker: %v", err)
	}
	if w.watchDir != "" {
		t.Errorf("Expected no watch dir for healthkit, got %s", w.watchDir)
	}
}

func TestWorkerRunsOnSchedule(t *testing.T) {
	w, syncer, _ := setupWorkerTest(t, "@every 1s", false)
	cancel, done := runWorker(t, w)

	select {
	case trigger := <-syncer.calls:
		if trigger != metrics.TriggerSchedule {
			t.Errorf("Expected trigger %s, got %s", metrics.TriggerSchedule, trigger)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected scheduled sync")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Worker did not stop")
	}
}

func TestWorkerSyncsOnNewExportFile(t *testing.T) {
	w, syncer, dir := setupWorkerTest(t, "@every 1h", true)
	runWorker(t, w)

	// Let the watcher register
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	select {
	case trigger := <-syncer.calls:
		t.Fatalf("Expected no sync for non-export file, got trigger %s", trigger)
	case <-time.After(300 * time.Millisecond):
	}

	// Several writes in quick succession collapse into one sync
	path := filepath.Join(dir, "morning-run.FIT")
	for range 3 {
		if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}

	select {
	case trigger := <-syncer.calls:
		if trigger != metrics.TriggerWatch {
			t.Errorf("Expected trigger %s, got %s", metrics.TriggerWatch, trigger)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected sync after export file was written")
	}

	select {
	case <-syncer.calls:
		t.Error("Expected debounced writes to trigger a single sync")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWorkerFailsWhenWatchDirMissing(t *testing.T) {
	w, _, dir := setupWorkerTest(t, "@every 1h", true)
	w.watchDir = filepath.Join(dir, "missing")

	_, done := runWorker(t, w)

	select {
	case err := <-done:
		if err == nil || errors.Is(err, context.Canceled) {
			t.Errorf("Expected watch error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected worker to fail")
	}
}
