package metrics

import (
	"context"
	"log/slog"
	"time"
)

// DB interface for retry queue depth queries
type DB interface {
	GetQueueLength(ctx context.Context) (int, error)
}

// StartQueueDepthCollector starts a background loop that periodically
// samples the retry queue depth from the database
func StartQueueDepthCollector(ctx context.Context, db DB, interval time.Duration) {
	logger := slog.Default()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect once immediately
	collectQueueDepth(ctx, db, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Queue depth collector stopping")
			return
		case <-ticker.C:
			collectQueueDepth(ctx, db, logger)
		}
	}
}

func collectQueueDepth(ctx context.Context, db DB, logger *slog.Logger) {
	depth, err := db.GetQueueLength(ctx)
	if err != nil {
		logger.Error("Failed to get retry queue length", "error", err)
		return
	}
	RetryQueueDepth.Set(float64(depth))
}
