package fitexport

import (
	"fmt"
	"math"
	"time"

	"github.com/tormoder/fit"

	"activity-sync/internal/activity"
)

// FIT epoch; timestamps at or before it were never set
var fitEpoch = time.Date(1989, time.December, 31, 0, 0, 0, 0, time.UTC)

func validTime(t time.Time) bool {
	return !t.IsZero() && t.After(fitEpoch)
}

// fileIdentity derives a stable identifier from the file_id message,
// or "" when the device did not fill it in
func fileIdentity(id *fit.FileIdMsg) string {
	if id == nil || id.SerialNumber == 0 || !validTime(id.TimeCreated) {
		return ""
	}
	return fmt.Sprintf("fit-%d-%d", id.SerialNumber, id.TimeCreated.Unix())
}

// fromActivityFile converts every session in af. Records are attached to
// the session whose span contains them.
func fromActivityFile(af *fit.ActivityFile, identity string) ([]activity.NormalizedActivity, error) {
	if len(af.Sessions) == 0 {
		return nil, fmt.Errorf("no sessions found in FIT file")
	}

	out := make([]activity.NormalizedActivity, 0, len(af.Sessions))
	for i, s := range af.Sessions {
		if !validTime(s.StartTime) {
			return nil, fmt.Errorf("session %d has no start time", i)
		}

		a := activity.NormalizedActivity{
			ActivityName:     sportName(s.Sport),
			StartTime:        s.StartTime.UTC(),
			HeartRateSamples: []activity.HeartRateSample{},
			Source:           activity.SourceHealthConnect,
		}

		if elapsed := s.GetTotalElapsedTimeScaled(); !math.IsNaN(elapsed) {
			a.Duration = elapsed
			a.EndTime = a.StartTime.Add(time.Duration(elapsed * float64(time.Second)))
		} else if validTime(s.Timestamp) {
			a.EndTime = s.Timestamp.UTC()
		} else {
			a.EndTime = a.StartTime
		}

		if s.TotalCalories != 0xFFFF {
			a.Calories = activity.Float64Ptr(float64(s.TotalCalories))
		}
		if d := s.GetTotalDistanceScaled(); !math.IsNaN(d) {
			a.Distance = activity.Float64Ptr(d)
		}

		if identity != "" {
			id := identity
			if len(af.Sessions) > 1 {
				id = fmt.Sprintf("%s-%d", identity, i)
			}
			a.ExternalID = activity.StringPtr(id)
		}

		attachRecords(&a, af.Records)
		out = append(out, a)
	}

	return out, nil
}

func attachRecords(a *activity.NormalizedActivity, records []*fit.RecordMsg) {
	for _, rec := range records {
		if rec == nil || rec.Timestamp.Before(a.StartTime) || rec.Timestamp.After(a.EndTime) {
			continue
		}
		ts := rec.Timestamp.UTC()

		if rec.HeartRate != 0xFF {
			a.HeartRateSamples = append(a.HeartRateSamples, activity.HeartRateSample{
				Timestamp: ts,
				BPM:       int(rec.HeartRate),
			})
		}

		if !rec.PositionLat.Invalid() && !rec.PositionLong.Invalid() {
			point := activity.RoutePoint{
				Timestamp: ts,
				Latitude:  rec.PositionLat.Degrees(),
				Longitude: rec.PositionLong.Degrees(),
			}
			if alt := rec.GetEnhancedAltitudeScaled(); !math.IsNaN(alt) {
				point.Altitude = activity.Float64Ptr(alt)
			} else if alt := rec.GetAltitudeScaled(); !math.IsNaN(alt) {
				point.Altitude = activity.Float64Ptr(alt)
			}
			a.Route = append(a.Route, point)
		}
	}
}

func sportName(s fit.Sport) string {
	if s == fit.SportInvalid {
		return "Workout"
	}
	return s.String()
}
