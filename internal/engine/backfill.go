package engine

import (
	"context"
	"fmt"

	"activity-sync/internal/activity"
	"activity-sync/internal/database"
	"activity-sync/internal/metrics"
)

// SubmitActivities sends caller-chosen activities straight to the backend.
// It never reads or moves the watermark or the retry queue. Items already
// known to be synced are submitted again; the backend decides what is new.
//
// Activities are sent one source at a time. If a later source fails, the
// groups already accepted stay recorded as synced and the result reports
// Success false with their counts and an error saying how many were submitted.
func (e *Engine) SubmitActivities(ctx context.Context, items []activity.NormalizedActivity) SyncResult {
	gen := e.generation.Load()
	token, ok := e.auth.GetToken(ctx)
	if !ok {
		return failure(notAuthenticatedMessage)
	}
	if len(items) == 0 {
		return SyncResult{Success: true}
	}

	batch := make([]activity.NormalizedActivity, len(items))
	copy(batch, items)
	for i := range batch {
		if err := batch[i].Normalize(); err != nil {
			return failure(fmt.Sprintf("invalid activity %d: %v", i, err))
		}
	}

	order, groups := activity.GroupBySource(batch)

	result := SyncResult{Success: true}
	submittedCount := 0
	for _, source := range order {
		group := groups[source]

		submitted, err := e.backend.SubmitBatch(ctx, group, source, token)
		if err != nil {
			metrics.SubmissionsTotal.WithLabelValues(metrics.PathBackfill, metrics.ResultFailure).Inc()
			e.logger.Error("Backfill submission failed", "source", source, "count", len(group), "error", err)
			result.Success = false
			result.Error = submitFailure(err)
			if submittedCount > 0 {
				result.Error = fmt.Sprintf("submitted %d of %d activities before failure: %s", submittedCount, len(batch), result.Error)
			}
			return result
		}
		metrics.SubmissionsTotal.WithLabelValues(metrics.PathBackfill, metrics.ResultSuccess).Inc()
		metrics.ActivitiesProcessedTotal.WithLabelValues(metrics.PathBackfill).Add(float64(submitted.Processed))
		metrics.ActivitiesSkippedTotal.WithLabelValues(metrics.PathBackfill).Add(float64(submitted.Skipped))

		result.ProcessedCount += submitted.Processed
		result.SkippedCount += submitted.Skipped

		submittedCount += len(group)

		err = e.commitIfCurrent(gen, func() error {
			return e.store.AddSyncedIDs(ctx, database.OriginBackfill, activity.Keys(group)...)
		})
		if err != nil {
			e.logger.Warn("Failed to record synced ids", "source", source, "error", err)
		}
	}

	syncedAt := e.clock()
	result.SyncedAt = &syncedAt

	e.logger.Info("Backfill submitted", "count", len(batch), "processed", result.ProcessedCount, "skipped", result.SkippedCount)
	return result
}
