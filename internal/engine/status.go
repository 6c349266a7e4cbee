package engine

import (
	"context"
	"time"

	"activity-sync/internal/backend"
)

// Status is a snapshot of the engine's state
type Status struct {
	SyncEnabled bool                    `json:"syncEnabled"`
	Watermark   *time.Time              `json:"watermark,omitempty"`
	QueueLength int                     `json:"queueLength"`
	SyncedCount int                     `json:"syncedCount"`
	InFlight    bool                    `json:"inFlight"`
	LastResult  *SyncResult             `json:"lastResult,omitempty"`
	LastRunAt   *time.Time              `json:"lastRunAt,omitempty"`
	RateLimit   backend.RateLimitStatus `json:"rateLimit"`

	// NearRateLimit is set once either backend bucket is 80% used
	NearRateLimit bool `json:"nearRateLimit"`
}

// Status reports the current state. Read failures are logged and leave the field at its zero value.
func (e *Engine) Status(ctx context.Context) Status {
	status := Status{
		InFlight:  e.inFlight.Load(),
		RateLimit: e.backend.RateLimitStatus(),
	}
	status.NearRateLimit = status.RateLimit.IsNearLimit(rateLimitWarnPct)

	var err error
	if status.SyncEnabled, err = e.store.IsSyncEnabled(ctx); err != nil {
		e.logger.Warn("Failed to read sync enabled flag", "error", err)
	}
	if status.Watermark, err = e.store.GetWatermark(ctx); err != nil {
		e.logger.Warn("Failed to read watermark", "error", err)
	}
	if status.QueueLength, err = e.store.GetQueueLength(ctx); err != nil {
		e.logger.Warn("Failed to read retry queue length", "error", err)
	}
	if status.SyncedCount, err = e.store.CountSyncedIDs(ctx); err != nil {
		e.logger.Warn("Failed to count synced ids", "error", err)
	}

	e.mu.RLock()
	status.LastResult = e.lastResult
	status.LastRunAt = e.lastRunAt
	e.mu.RUnlock()

	return status
}
