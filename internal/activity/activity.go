package activity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Source identifies which health platform produced an activity
type Source string

const (
	SourceHealthKit     Source = "healthkit"
	SourceHealthConnect Source = "health_connect"
)

// Valid reports whether s is a known source
func (s Source) Valid() bool {
	return s == SourceHealthKit || s == SourceHealthConnect
}

// HeartRateSample is a single heart rate reading
type HeartRateSample struct {
	Timestamp time.Time `json:"timestamp"`
	BPM       int       `json:"bpm"`
}

// RoutePoint is a single GPS fix along a workout route
type RoutePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude,omitempty"`
}

// NormalizedActivity is a workout ready for transmission to the backend
type NormalizedActivity struct {
	ExternalID       *string           `json:"externalId,omitempty"`
	ActivityName     string            `json:"activityName"`
	StartTime        time.Time         `json:"startTime"`
	EndTime          time.Time         `json:"endTime"`
	Duration         float64           `json:"duration"` // seconds
	Calories         *float64          `json:"calories,omitempty"`
	Distance         *float64          `json:"distance,omitempty"` // meters
	HeartRateSamples []HeartRateSample `json:"heartRateSamples"`
	Route            []RoutePoint      `json:"route,omitempty"`
	Source           Source            `json:"source"`
}

// Normalize fills derived fields and checks the record invariants.
// A missing duration is derived from the time span.
func (a *NormalizedActivity) Normalize() error {
	if !a.Source.Valid() {
		return fmt.Errorf("unknown source %q", a.Source)
	}
	if a.StartTime.IsZero() || a.EndTime.IsZero() {
		return fmt.Errorf("activity is missing start or end time")
	}
	if a.EndTime.Before(a.StartTime) {
		return fmt.Errorf("end time %s is before start time %s", a.EndTime.Format(time.RFC3339), a.StartTime.Format(time.RFC3339))
	}
	if a.Duration < 0 {
		return fmt.Errorf("negative duration %f", a.Duration)
	}
	if a.Duration == 0 {
		a.Duration = a.EndTime.Sub(a.StartTime).Seconds()
	}
	if a.HeartRateSamples == nil {
		a.HeartRateSamples = []HeartRateSample{}
	}
	for i := 1; i < len(a.HeartRateSamples); i++ {
		if a.HeartRateSamples[i].Timestamp.Before(a.HeartRateSamples[i-1].Timestamp) {
			return fmt.Errorf("heart rate samples are not in ascending order at index %d", i)
		}
	}
	return nil
}

// Key returns the identity of the activity used for dedup.
// Records without an external ID are keyed by a fingerprint of their provenance and span.
func (a *NormalizedActivity) Key() string {
	if a.ExternalID != nil && *a.ExternalID != "" {
		return *a.ExternalID
	}
	h := sha1.New()
	h.Write([]byte(string(a.Source)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(a.StartTime.UnixMilli(), 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(a.EndTime.UnixMilli(), 10)))
	h.Write([]byte{0})
	h.Write([]byte(a.ActivityName))
	return "fp-" + hex.EncodeToString(h.Sum(nil))[:24]
}

// EndedIn reports whether the activity finished in [since, until).
// Platforms only record a workout once it ends, so sync windows select on end time.
func (a *NormalizedActivity) EndedIn(since, until time.Time) bool {
	return !a.EndTime.Before(since) && a.EndTime.Before(until)
}

// Keys returns the identity keys of activities in order
func Keys(activities []NormalizedActivity) []string {
	keys := make([]string, len(activities))
	for i := range activities {
		keys[i] = activities[i].Key()
	}
	return keys
}

// Merge appends the activities in next that are not already present in head.
// Order is head first, then new arrivals in their original order.
func Merge(head, next []NormalizedActivity) []NormalizedActivity {
	seen := make(map[string]struct{}, len(head)+len(next))
	out := make([]NormalizedActivity, 0, len(head)+len(next))
	for _, a := range head {
		k := a.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	for _, a := range next {
		k := a.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

// GroupBySource splits activities by provenance, keeping first-seen source order
func GroupBySource(activities []NormalizedActivity) ([]Source, map[Source][]NormalizedActivity) {
	var order []Source
	groups := make(map[Source][]NormalizedActivity)
	for _, a := range activities {
		if _, ok := groups[a.Source]; !ok {
			order = append(order, a.Source)
		}
		groups[a.Source] = append(groups[a.Source], a)
	}
	return order, groups
}

// StringPtr is a convenience for optional string fields
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr is a convenience for optional numeric fields
func Float64Ptr(f float64) *float64 {
	return &f
}
