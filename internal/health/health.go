// Package health reads workouts from the device's health platform.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"activity-sync/internal/activity"
	"activity-sync/internal/config"
	"activity-sync/internal/health/fitexport"
	"activity-sync/internal/health/healthkit"
)

// Adapter returns normalized activities from a health platform.
//
// QueryNewActivities skips records that fail to decode or validate and
// only returns an error when the platform as a whole cannot be queried.
type Adapter interface {
	Source() activity.Source
	// Init prepares the platform connection. It is called before every
	// query and must be safe to call repeatedly.
	Init(ctx context.Context) error
	QueryNewActivities(ctx context.Context, since, until time.Time) ([]activity.NormalizedActivity, error)
}

// New selects the adapter for the configured platform
func New(cfg *config.Config, logger *slog.Logger) (Adapter, error) {
	switch cfg.HealthPlatform {
	case config.PlatformHealthKit:
		httpClient := &http.Client{Timeout: 30 * time.Second}
		return healthkit.NewClient(cfg.HealthKitBridgeURL, httpClient, logger)
	case config.PlatformHealthConnect:
		return fitexport.NewReader(cfg.FITExportDir, logger), nil
	default:
		return nil, fmt.Errorf("unsupported health platform %q", cfg.HealthPlatform)
	}
}
