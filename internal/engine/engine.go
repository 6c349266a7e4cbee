// Package engine coordinates incremental sync, manual backfill and
// reconciliation between the health platform, the local store and the backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"activity-sync/internal/activity"
	"activity-sync/internal/backend"
	"activity-sync/internal/database"
	"activity-sync/internal/health"
)

// Message surfaced when no token is available or the backend rejects it
const notAuthenticatedMessage = "Not authenticated"

// Usage percentage at which Status flags the backend rate limit
const rateLimitWarnPct = 80

var (
	errEngineClosed = errors.New("sync engine is shut down")
	// errStoreWiped is returned when local state was wiped while an
	// operation was talking to the backend
	errStoreWiped = errors.New("local state was wiped during the operation")
)

// Store is the local state the engine reads and commits
type Store interface {
	GetWatermark(ctx context.Context) (*time.Time, error)
	SetWatermark(ctx context.Context, t time.Time) (time.Time, error)
	GetQueue(ctx context.Context) (*database.RetryQueue, error)
	AppendToQueue(ctx context.Context, activities []activity.NormalizedActivity, errMsg string) error
	CommitSync(ctx context.Context, watermark time.Time, upToPosition int64) (time.Time, error)
	GetQueueLength(ctx context.Context) (int, error)
	GetSyncedIDs(ctx context.Context) (map[string]struct{}, error)
	AddSyncedIDs(ctx context.Context, origin string, ids ...string) error
	CountSyncedIDs(ctx context.Context) (int, error)
	IsSyncEnabled(ctx context.Context) (bool, error)
	SetSyncEnabled(ctx context.Context, enabled bool) error
	GetCachedActivities(ctx context.Context) ([]activity.NormalizedActivity, error)
	SetCachedActivities(ctx context.Context, activities []activity.NormalizedActivity) error
	Wipe(ctx context.Context) error
}

// Backend submits batches and reports what it already holds
type Backend interface {
	SubmitBatch(ctx context.Context, activities []activity.NormalizedActivity, source activity.Source, token string) (*backend.SubmitResult, error)
	FetchRemoteSyncedIDs(ctx context.Context, token string) ([]string, error)
	RateLimitStatus() backend.RateLimitStatus
}

// TokenProvider resolves the bearer token for backend calls
type TokenProvider interface {
	GetToken(ctx context.Context) (string, bool)
}

// SyncResult is returned to every caller of a sync operation
type SyncResult struct {
	Success        bool       `json:"success"`
	ProcessedCount int        `json:"processedCount"`
	SkippedCount   int        `json:"skippedCount"`
	Error          string     `json:"error,omitempty"`
	SyncedAt       *time.Time `json:"syncedAt,omitempty"`
}

func failure(msg string) SyncResult {
	return SyncResult{Success: false, Error: msg}
}

// Options tune engine policy
type Options struct {
	// FreezeWatermarkOnSourceFailure makes a failed health query a retryable
	// sync failure instead of an empty window
	FreezeWatermarkOnSourceFailure bool
	// SyncWindowOverlap re-reads this much before the watermark so workouts
	// the platform saved after their end time are still picked up
	SyncWindowOverlap time.Duration
	// DeviceLookback bounds the device listing window
	DeviceLookback time.Duration
	Logger         *slog.Logger
	// Now overrides the clock, for tests
	Now func() time.Time
}

// Engine is the sync orchestrator
type Engine struct {
	store   Store
	source  health.Adapter
	backend Backend
	auth    TokenProvider
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	// group collapses concurrent sync requests onto one cycle
	group singleflight.Group
	// cycleMu serializes a running cycle against Wipe
	cycleMu  sync.Mutex
	inFlight atomic.Bool
	closed   atomic.Bool
	// generation is bumped by Wipe under cycleMu
	generation atomic.Uint64

	mu         sync.RWMutex
	lastResult *SyncResult
	lastRunAt  *time.Time
}

// New creates an engine
func New(store Store, source health.Adapter, backendClient Backend, auth TokenProvider, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.SyncWindowOverlap < 0 {
		opts.SyncWindowOverlap = 0
	}
	if opts.DeviceLookback <= 0 {
		opts.DeviceLookback = 30 * 24 * time.Hour
	}

	return &Engine{
		store:   store,
		source:  source,
		backend: backendClient,
		auth:    auth,
		opts:    opts,
		logger:  logger,
		now:     now,
	}
}

// clock returns the current time at the store's precision
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// SetSyncEnabled turns automatic sync on or off
func (e *Engine) SetSyncEnabled(ctx context.Context, enabled bool) error {
	return e.store.SetSyncEnabled(ctx, enabled)
}

// Wipe clears all local state. It waits for a running cycle to finish
// so that the cycle cannot commit into a wiped store.
func (e *Engine) Wipe(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	if err := e.store.Wipe(ctx); err != nil {
		return err
	}
	e.generation.Add(1)

	e.mu.Lock()
	e.lastResult = nil
	e.lastRunAt = nil
	e.mu.Unlock()

	e.logger.Info("Local sync state wiped")
	return nil
}

// Close stops new sync cycles and waits for a running one to commit.
// Call it before closing the store.
func (e *Engine) Close() {
	e.closed.Store(true)
	e.cycleMu.Lock()
	e.cycleMu.Unlock()
}

// commitIfCurrent runs fn under cycleMu unless local state was wiped after
// gen was read or the engine was closed. Writes made outside a cycle go
// through here so they cannot land in a store that was wiped under them.
func (e *Engine) commitIfCurrent(gen uint64, fn func() error) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	if e.closed.Load() {
		return errEngineClosed
	}
	if e.generation.Load() != gen {
		return errStoreWiped
	}
	return fn()
}

// submitFailure turns a submission error into the message returned to callers
func submitFailure(err error) string {
	switch {
	case backend.IsUnauthorized(err):
		return notAuthenticatedMessage
	case backend.IsTooManyRequests(err):
		return fmt.Sprintf("backend rate limit reached: %v", err)
	case backend.IsServerError(err):
		return fmt.Sprintf("backend unavailable: %v", err)
	default:
		return err.Error()
	}
}
