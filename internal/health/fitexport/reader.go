// Package fitexport reads workouts from FIT files that the Android companion
// exports out of Health Connect.
package fitexport

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tormoder/fit"

	"activity-sync/internal/activity"
	"activity-sync/internal/metrics"
)

// Reader scans an export directory for .fit files
type Reader struct {
	dir    string
	logger *slog.Logger
}

// NewReader creates a reader for dir
func NewReader(dir string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{dir: dir, logger: logger}
}

// Source reports the platform tag stamped on every activity
func (r *Reader) Source() activity.Source {
	return activity.SourceHealthConnect
}

// Init makes sure the export directory exists
func (r *Reader) Init(ctx context.Context) error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(r.dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export dir: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat export dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("export path %s is not a directory", r.dir)
	}
	return nil
}

// IsExportFile reports whether name looks like a FIT export
func IsExportFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".fit")
}

// QueryNewActivities returns sessions that ended in [since, until).
// Files that fail to decode are skipped.
func (r *Reader) QueryNewActivities(ctx context.Context, since, until time.Time) ([]activity.NormalizedActivity, error) {
	source := string(r.Source())

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		metrics.HealthQueryFailuresTotal.WithLabelValues(source).Inc()
		return nil, fmt.Errorf("failed to read export dir: %w", err)
	}

	var activities []activity.NormalizedActivity
	for _, entry := range entries {
		if entry.IsDir() || !IsExportFile(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(r.dir, entry.Name())
		decoded, err := r.readFile(path)
		if err != nil {
			metrics.HealthRecordsSkippedTotal.WithLabelValues(source, metrics.SkipReasonDecode).Inc()
			r.logger.Warn("Skipping FIT export", "file", entry.Name(), "error", err)
			continue
		}

		for _, a := range decoded {
			metrics.HealthRecordsTotal.WithLabelValues(source).Inc()

			if err := a.Normalize(); err != nil {
				metrics.HealthRecordsSkippedTotal.WithLabelValues(source, metrics.SkipReasonInvalid).Inc()
				r.logger.Warn("Skipping FIT session", "file", entry.Name(), "error", err)
				continue
			}
			if !a.EndedIn(since, until) {
				metrics.HealthRecordsSkippedTotal.WithLabelValues(source, metrics.SkipReasonOutside).Inc()
				continue
			}
			activities = append(activities, a)
		}
	}

	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].StartTime.Before(activities[j].StartTime)
	})

	return activities, nil
}

func (r *Reader) readFile(path string) ([]activity.NormalizedActivity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fitFile, err := fit.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to decode FIT file: %w", err)
	}

	af, err := fitFile.Activity()
	if err != nil {
		return nil, fmt.Errorf("failed to get activity from FIT: %w", err)
	}

	return fromActivityFile(af, fileIdentity(&fitFile.FileId))
}
