package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"activity-sync/internal/activity"
	"activity-sync/internal/backend"
	"activity-sync/internal/database"
	"activity-sync/internal/metrics"
)

// PerformSync runs one incremental sync cycle on behalf of the background trigger
func (e *Engine) PerformSync(ctx context.Context) SyncResult {
	return e.RunSync(ctx, metrics.TriggerSchedule)
}

// TriggerManualSync runs one incremental sync cycle on behalf of the user
func (e *Engine) TriggerManualSync(ctx context.Context) SyncResult {
	return e.RunSync(ctx, metrics.TriggerManual)
}

// RunSync runs a sync cycle, or joins the one already running and returns its result.
// The cycle is not tied to ctx: if ctx ends first the caller gets a failure
// result but the cycle still completes and commits.
func (e *Engine) RunSync(ctx context.Context, trigger string) SyncResult {
	metrics.SyncTriggersTotal.WithLabelValues(trigger).Inc()
	if e.inFlight.Load() {
		metrics.SyncJoinedTotal.Inc()
	}

	detached := context.WithoutCancel(ctx)
	ch := e.group.DoChan("sync", func() (any, error) {
		return e.performCycle(detached, trigger), nil
	})

	select {
	case res := <-ch:
		return res.Val.(SyncResult)
	case <-ctx.Done():
		return failure(fmt.Sprintf("stopped waiting for sync: %v", ctx.Err()))
	}
}

func (e *Engine) performCycle(ctx context.Context, trigger string) SyncResult {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	if e.closed.Load() {
		return failure(errEngineClosed.Error())
	}
	e.inFlight.Store(true)
	defer e.inFlight.Store(false)

	logger := e.logger.With("run_id", uuid.NewString(), "trigger", trigger)
	start := time.Now()
	now := e.clock()

	logger.Info("Sync cycle starting")
	result, outcome := e.cycle(ctx, logger, now)

	duration := time.Since(start)
	metrics.SyncCyclesTotal.WithLabelValues(outcome).Inc()
	metrics.SyncCycleDuration.WithLabelValues(outcome).Observe(duration.Seconds())

	logger.Info("Sync cycle finished",
		"outcome", outcome,
		"success", result.Success,
		"processed", result.ProcessedCount,
		"skipped", result.SkippedCount,
		"error", result.Error,
		"duration_ms", duration.Milliseconds(),
	)

	e.mu.Lock()
	e.lastResult = &result
	e.lastRunAt = &now
	e.mu.Unlock()

	return result
}

// cycle is a single pass of the incremental sync. now bounds the fetch
// window and becomes the committed watermark.
func (e *Engine) cycle(ctx context.Context, logger *slog.Logger, now time.Time) (SyncResult, string) {
	enabled, err := e.store.IsSyncEnabled(ctx)
	if err != nil {
		logger.Warn("Failed to read sync enabled flag, assuming enabled", "error", err)
		enabled = true
	}
	if !enabled {
		return SyncResult{Success: true}, metrics.OutcomeDisabled
	}

	token, ok := e.auth.GetToken(ctx)
	if !ok {
		return failure(notAuthenticatedMessage), metrics.OutcomeNotAuthenticated
	}

	// A failed read must not be mistaken for first run, which would skip
	// the window since the stored watermark
	watermark, err := e.store.GetWatermark(ctx)
	if err != nil {
		logger.Error("Failed to read watermark", "error", err)
		return failure(fmt.Sprintf("local store unavailable: %v", err)), metrics.OutcomeStoreFailed
	}
	since := now
	if watermark == nil {
		// First run starts from now; history comes in through backfill
		if _, err := e.store.SetWatermark(ctx, now); err != nil {
			logger.Warn("Failed to initialize watermark", "error", err)
		}
		watermark = &now
		logger.Info("Initialized watermark", "watermark", now)
	} else {
		since = watermark.Add(-e.opts.SyncWindowOverlap)
	}

	fresh, err := e.queryWindow(ctx, since, now)
	if err != nil {
		logger.Error("Health source query failed", "since", since, "until", now, "error", err)
		if e.opts.FreezeWatermarkOnSourceFailure {
			return failure(fmt.Sprintf("health source unavailable: %v", err)), metrics.OutcomeSourceFailed
		}
		// Treat as an empty window so a broken window cannot block sync forever
		fresh = nil
	}
	fresh = e.dropResynced(ctx, logger, fresh, *watermark)

	queue, err := e.store.GetQueue(ctx)
	if err != nil {
		logger.Warn("Failed to read retry queue, treating as empty", "error", err)
		queue = &database.RetryQueue{}
	}
	if queue.Corrupt > 0 {
		logger.Warn("Dropping undecodable retry queue entries", "count", queue.Corrupt)
	}

	batch := activity.Merge(queue.Activities(), fresh)
	logger.Info("Sync batch assembled", "queued", len(queue.Items), "fresh", len(fresh), "batch", len(batch))

	if len(batch) == 0 {
		syncedAt, err := e.store.CommitSync(ctx, now, queue.MaxPosition)
		if err != nil {
			logger.Error("Failed to advance watermark", "error", err)
			syncedAt = now
		}
		return SyncResult{Success: true, SyncedAt: &syncedAt}, metrics.OutcomeEmpty
	}

	processed, skipped, err := e.submit(ctx, batch, token, metrics.PathIncremental)
	if err != nil {
		if backend.IsUnauthorized(err) {
			// Nothing is committed, so the same window is read again after login
			logger.Warn("Backend rejected the token", "count", len(batch), "error", err)
			return failure(notAuthenticatedMessage), metrics.OutcomeNotAuthenticated
		}
		logger.Error("Batch submission failed, queueing for retry", "count", len(batch), "error", err)
		if qerr := e.store.AppendToQueue(ctx, batch, err.Error()); qerr != nil {
			logger.Error("Failed to persist retry queue", "count", len(batch), "error", qerr)
		}
		return failure(submitFailure(err)), metrics.OutcomeSubmitFailed
	}

	syncedAt, err := e.store.CommitSync(ctx, now, queue.MaxPosition)
	if err != nil {
		// The backend has the batch; the next cycle resubmits it and the backend dedups
		logger.Error("Failed to commit sync state", "error", err)
		syncedAt = now
	}

	if err := e.store.AddSyncedIDs(ctx, database.OriginIncremental, activity.Keys(batch)...); err != nil {
		logger.Warn("Failed to record synced ids", "error", err)
	}

	return SyncResult{
		Success:        true,
		ProcessedCount: processed,
		SkippedCount:   skipped,
		SyncedAt:       &syncedAt,
	}, metrics.OutcomeSuccess
}

// dropResynced removes activities that ended before the watermark and are
// already synced. Only the overlap re-read can return those.
func (e *Engine) dropResynced(ctx context.Context, logger *slog.Logger, fresh []activity.NormalizedActivity, watermark time.Time) []activity.NormalizedActivity {
	if e.opts.SyncWindowOverlap == 0 || len(fresh) == 0 {
		return fresh
	}

	synced, err := e.store.GetSyncedIDs(ctx)
	if err != nil {
		logger.Warn("Failed to read synced ids, resubmitting overlap", "error", err)
		return fresh
	}

	kept := make([]activity.NormalizedActivity, 0, len(fresh))
	for _, a := range fresh {
		if a.EndTime.Before(watermark) {
			if _, ok := synced[a.Key()]; ok {
				continue
			}
		}
		kept = append(kept, a)
	}
	if dropped := len(fresh) - len(kept); dropped > 0 {
		logger.Debug("Skipped activities already synced in the overlap", "count", dropped)
	}
	return kept
}

// queryWindow prepares the health source and reads [since, until)
func (e *Engine) queryWindow(ctx context.Context, since, until time.Time) ([]activity.NormalizedActivity, error) {
	if err := e.source.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize health source: %w", err)
	}
	return e.source.QueryNewActivities(ctx, since, until)
}

// submit sends batch grouped by source. Any group failing fails the whole call.
func (e *Engine) submit(ctx context.Context, batch []activity.NormalizedActivity, token, path string) (int, int, error) {
	order, groups := activity.GroupBySource(batch)

	processed, skipped := 0, 0
	for _, source := range order {
		result, err := e.backend.SubmitBatch(ctx, groups[source], source, token)
		if err != nil {
			metrics.SubmissionsTotal.WithLabelValues(path, metrics.ResultFailure).Inc()
			return processed, skipped, err
		}
		metrics.SubmissionsTotal.WithLabelValues(path, metrics.ResultSuccess).Inc()
		processed += result.Processed
		skipped += result.Skipped
	}

	metrics.ActivitiesProcessedTotal.WithLabelValues(path).Add(float64(processed))
	metrics.ActivitiesSkippedTotal.WithLabelValues(path).Add(float64(skipped))
	return processed, skipped, nil
}
