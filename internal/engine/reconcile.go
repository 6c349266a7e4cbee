package engine

import (
	"context"
	"fmt"

	"activity-sync/internal/activity"
	"activity-sync/internal/auth"
	"activity-sync/internal/database"
	"activity-sync/internal/metrics"
)

// DeviceActivity is an activity held on the device, annotated for the UI
type DeviceActivity struct {
	activity.NormalizedActivity
	Key    string `json:"key"`
	Synced bool   `json:"synced"`
}

// DeviceListing is the result of ListDeviceActivities
type DeviceListing struct {
	Activities []DeviceActivity `json:"activities"`
	// FromCache is set when the health source failed and the last listing was used
	FromCache  bool `json:"fromCache"`
	Reconciled int  `json:"reconciled"`
}

// ListDeviceActivities reads recent activities from the health source,
// caches them and marks which ones are already synced. When the synced set
// is empty but the device has activities, the set is reseeded from the backend.
func (e *Engine) ListDeviceActivities(ctx context.Context) (*DeviceListing, error) {
	gen := e.generation.Load()
	now := e.clock()
	since := now.Add(-e.opts.DeviceLookback)

	listing := &DeviceListing{}

	activities, err := e.queryWindow(ctx, since, now)
	if err != nil {
		e.logger.Warn("Health source query failed, using cached activities", "error", err)
		cached, cerr := e.store.GetCachedActivities(ctx)
		if cerr != nil {
			return nil, fmt.Errorf("failed to list device activities: %w", err)
		}
		activities = cached
		listing.FromCache = true
	} else {
		err := e.commitIfCurrent(gen, func() error {
			return e.store.SetCachedActivities(ctx, activities)
		})
		if err != nil {
			e.logger.Warn("Failed to cache device activities", "error", err)
		}
	}

	synced, err := e.store.GetSyncedIDs(ctx)
	if err != nil {
		e.logger.Warn("Failed to read synced ids, treating as empty", "error", err)
		synced = map[string]struct{}{}
	}

	if len(synced) == 0 && len(activities) > 0 {
		seeded, err := e.reconcile(ctx, gen, activities)
		if err != nil {
			// Only the synced badge depends on this
			e.logger.Info("Reconciliation skipped", "error", err)
		}
		for _, id := range seeded {
			synced[id] = struct{}{}
		}
		listing.Reconciled = len(seeded)
	}

	listing.Activities = make([]DeviceActivity, len(activities))
	for i, a := range activities {
		key := a.Key()
		_, ok := synced[key]
		listing.Activities[i] = DeviceActivity{NormalizedActivity: a, Key: key, Synced: ok}
	}

	return listing, nil
}

// Reconcile reseeds the synced set from the backend using the cached device listing.
// Returns the number of identifiers seeded.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	gen := e.generation.Load()
	cached, err := e.store.GetCachedActivities(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read cached activities: %w", err)
	}
	seeded, err := e.reconcile(ctx, gen, cached)
	return len(seeded), err
}

// reconcile seeds the synced set with the device activities the backend already holds.
// Nothing is written if local state was wiped since gen was read.
func (e *Engine) reconcile(ctx context.Context, gen uint64, device []activity.NormalizedActivity) ([]string, error) {
	if len(device) == 0 {
		return nil, nil
	}

	token, ok := e.auth.GetToken(ctx)
	if !ok {
		metrics.ReconciliationsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return nil, auth.ErrNotAuthenticated
	}

	remote, err := e.backend.FetchRemoteSyncedIDs(ctx, token)
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, fmt.Errorf("failed to fetch remote synced ids: %w", err)
	}

	seeded := intersect(activity.Keys(device), remote)
	err = e.commitIfCurrent(gen, func() error {
		return e.store.AddSyncedIDs(ctx, database.OriginReconcile, seeded...)
	})
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, fmt.Errorf("failed to seed synced ids: %w", err)
	}

	metrics.ReconciliationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.ReconciledIDsTotal.Add(float64(len(seeded)))
	e.logger.Info("Reconciled synced ids", "device", len(device), "remote", len(remote), "seeded", len(seeded))

	return seeded, nil
}

// intersect returns the local keys that also appear in remote, in local order
func intersect(local, remote []string) []string {
	known := make(map[string]struct{}, len(remote))
	for _, id := range remote {
		known[id] = struct{}{}
	}

	var out []string
	seen := make(map[string]struct{})
	for _, id := range local {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
