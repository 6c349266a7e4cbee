package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"activity-sync/internal/activity"
	"activity-sync/internal/auth"
	"activity-sync/internal/backend"
	"activity-sync/internal/config"
	"activity-sync/internal/database"
	"activity-sync/internal/engine"
	"activity-sync/internal/health"
)

func main() {
	// Disable structured logging for CLI
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors
	})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "help" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.Default()
	authManager := auth.NewManager(db, cfg.AuthToken, logger)

	source, err := health.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	eng := engine.New(db, source,
		backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, cfg.BackendMaxRetries, logger),
		authManager,
		engine.Options{
			FreezeWatermarkOnSourceFailure: cfg.FreezeWatermarkOnSourceFailure,
			SyncWindowOverlap:              cfg.SyncWindowOverlap,
			DeviceLookback:                 cfg.DeviceLookback,
			Logger:                         logger,
		})

	var ok bool
	switch command {
	case "sync":
		ok = handleSync(ctx, eng)
	case "submit":
		ok = handleSubmit(ctx, eng)
	case "status":
		ok = handleStatus(ctx, eng)
	case "activities":
		ok = handleActivities(ctx, eng)
	case "enable":
		ok = handleSetEnabled(ctx, eng, true)
	case "disable":
		ok = handleSetEnabled(ctx, eng, false)
	case "reconcile":
		ok = handleReconcile(ctx, eng)
	case "wipe":
		ok = handleWipe(ctx, eng)
	case "login":
		ok = handleLogin(ctx, authManager)
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		ok = false
	}

	// An interrupted sync keeps running; wait for it before the store closes
	eng.Close()
	if !ok {
		db.Close()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`activity-sync CLI - Workout Sync Control

Usage:
  cli <command> [options]

Commands:
  sync              Run one incremental sync cycle now
  submit <file>     Submit activities from a JSON file (array or {"activities": [...]})
  status            Show watermark, retry queue and last sync result
  activities        List recent device activities and their sync state
  enable            Turn automatic sync on
  disable           Turn automatic sync off
  reconcile         Mark device activities the backend already has as synced
  wipe              Log out and clear all local sync state
  login <token>     Store a backend session token
  help              Show this help message

Examples:
  cli sync
  cli submit history.json
  cli login eyJhbGciOi...

Environment Variables Required:
  BACKEND_URL            - Activity backend base URL
  DATABASE_PATH          - Local store path (default: ./activity-sync.db)
  HEALTH_PLATFORM        - healthkit or health_connect
  AUTH_TOKEN             - Static backend token (optional if logged in)`)
}

func printResult(result engine.SyncResult) bool {
	if !result.Success {
		fmt.Fprintf(os.Stderr, "Error: %s\n", result.Error)
		return false
	}
	fmt.Println("✓ Sync succeeded")
	fmt.Printf("  Processed: %d\n", result.ProcessedCount)
	fmt.Printf("  Skipped: %d\n", result.SkippedCount)
	if result.SyncedAt != nil {
		fmt.Printf("  Synced At: %s\n", result.SyncedAt.Format(time.RFC3339))
	}
	return true
}

func handleSync(ctx context.Context, eng *engine.Engine) bool {
	fmt.Println("Running sync...")
	return printResult(eng.TriggerManualSync(ctx))
}

func handleSubmit(ctx context.Context, eng *engine.Engine) bool {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: File required")
		fmt.Fprintln(os.Stderr, "Usage: cli submit <file>")
		return false
	}

	items, err := readActivities(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}

	fmt.Printf("Submitting %d activities...\n", len(items))
	return printResult(eng.SubmitActivities(ctx, items))
}

// readActivities accepts either a bare JSON array or {"activities": [...]}
func readActivities(path string) ([]activity.NormalizedActivity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("[")) {
		var items []activity.NormalizedActivity
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return items, nil
	}

	var wrapped struct {
		Activities []activity.NormalizedActivity `json:"activities"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return wrapped.Activities, nil
}

func handleStatus(ctx context.Context, eng *engine.Engine) bool {
	status := eng.Status(ctx)

	fmt.Println("Sync Status:")
	fmt.Printf("  Enabled: %t\n", status.SyncEnabled)
	if status.Watermark != nil {
		fmt.Printf("  Watermark: %s\n", status.Watermark.Format(time.RFC3339))
	} else {
		fmt.Println("  Watermark: (never synced)")
	}
	fmt.Printf("  Retry Queue: %d\n", status.QueueLength)
	fmt.Printf("  Synced IDs: %d\n", status.SyncedCount)
	if status.NearRateLimit {
		fmt.Printf("  Rate Limit: near limit (window %.0f%%, daily %.0f%%)\n",
			status.RateLimit.UsageWindowPct, status.RateLimit.UsageDailyPct)
	}
	return true
}

func handleActivities(ctx context.Context, eng *engine.Engine) bool {
	listing, err := eng.ListDeviceActivities(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}

	if listing.FromCache {
		fmt.Println("Health source unavailable, showing cached activities.")
	}
	if len(listing.Activities) == 0 {
		fmt.Println("No activities found.")
		return true
	}

	fmt.Printf("\nFound %d activit(ies):\n\n", len(listing.Activities))
	for _, a := range listing.Activities {
		mark := " "
		if a.Synced {
			mark = "✓"
		}
		fmt.Printf("%s %s  %-20s %6.1f min  %s\n",
			mark,
			a.StartTime.Local().Format("2006-01-02 15:04"),
			a.ActivityName,
			a.Duration/60,
			a.Key)
	}
	if listing.Reconciled > 0 {
		fmt.Printf("\nReconciled %d activities with the backend.\n", listing.Reconciled)
	}
	return true
}

func handleSetEnabled(ctx context.Context, eng *engine.Engine, enabled bool) bool {
	if err := eng.SetSyncEnabled(ctx, enabled); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	if enabled {
		fmt.Println("✓ Automatic sync enabled")
	} else {
		fmt.Println("✓ Automatic sync disabled")
	}
	return true
}

func handleReconcile(ctx context.Context, eng *engine.Engine) bool {
	seeded, err := eng.Reconcile(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	fmt.Printf("✓ Marked %d activities as synced\n", seeded)
	return true
}

func handleWipe(ctx context.Context, eng *engine.Engine) bool {
	if err := eng.Wipe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	fmt.Println("✓ Local sync state cleared")
	return true
}

func handleLogin(ctx context.Context, authManager *auth.Manager) bool {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: Token required")
		fmt.Fprintln(os.Stderr, "Usage: cli login <token>")
		return false
	}

	if err := authManager.Login(ctx, strings.TrimSpace(os.Args[2])); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	fmt.Println("✓ Logged in")
	return true
}
