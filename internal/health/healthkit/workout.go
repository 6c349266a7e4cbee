package healthkit

import (
	"slices"
	"strings"
	"time"

	"activity-sync/internal/activity"
)

// workoutSchema describes one record as emitted by the bridge
const workoutSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["workoutActivityType", "startDate", "endDate"],
	"properties": {
		"uuid": {"type": "string", "minLength": 1},
		"workoutActivityType": {"type": "string", "minLength": 1},
		"startDate": {"type": "string", "minLength": 1},
		"endDate": {"type": "string", "minLength": 1},
		"duration": {"type": "number", "minimum": 0},
		"totalEnergyBurned": {"type": "number", "minimum": 0},
		"totalDistance": {"type": "number", "minimum": 0},
		"heartRate": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["date", "bpm"],
				"properties": {
					"date": {"type": "string"},
					"bpm": {"type": "integer", "minimum": 0, "maximum": 300}
				}
			}
		},
		"route": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["date", "latitude", "longitude"],
				"properties": {
					"date": {"type": "string"},
					"latitude": {"type": "number", "minimum": -90, "maximum": 90},
					"longitude": {"type": "number", "minimum": -180, "maximum": 180},
					"altitude": {"type": "number"}
				}
			}
		}
	}
}`

type workout struct {
	UUID              string          `json:"uuid"`
	ActivityType      string          `json:"workoutActivityType"`
	StartDate         time.Time       `json:"startDate"`
	EndDate           time.Time       `json:"endDate"`
	Duration          float64         `json:"duration"`
	TotalEnergyBurned *float64        `json:"totalEnergyBurned"`
	TotalDistance     *float64        `json:"totalDistance"`
	HeartRate         []heartRate     `json:"heartRate"`
	Route             []routeLocation `json:"route"`
}

type heartRate struct {
	Date time.Time `json:"date"`
	BPM  int       `json:"bpm"`
}

type routeLocation struct {
	Date      time.Time `json:"date"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude"`
}

func (w *workout) toActivity() *activity.NormalizedActivity {
	a := &activity.NormalizedActivity{
		ActivityName:     activityName(w.ActivityType),
		StartTime:        w.StartDate.UTC(),
		EndTime:          w.EndDate.UTC(),
		Duration:         w.Duration,
		Calories:         w.TotalEnergyBurned,
		Distance:         w.TotalDistance,
		HeartRateSamples: make([]activity.HeartRateSample, 0, len(w.HeartRate)),
		Source:           activity.SourceHealthKit,
	}
	if w.UUID != "" {
		a.ExternalID = activity.StringPtr(w.UUID)
	}

	for _, hr := range w.HeartRate {
		a.HeartRateSamples = append(a.HeartRateSamples, activity.HeartRateSample{
			Timestamp: hr.Date.UTC(),
			BPM:       hr.BPM,
		})
	}
	// HealthKit sample queries are not guaranteed to be ordered
	slices.SortStableFunc(a.HeartRateSamples, func(x, y activity.HeartRateSample) int {
		return x.Timestamp.Compare(y.Timestamp)
	})

	for _, loc := range w.Route {
		a.Route = append(a.Route, activity.RoutePoint{
			Timestamp: loc.Date.UTC(),
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Altitude:  loc.Altitude,
		})
	}

	return a
}

// activityName turns "HKWorkoutActivityTypeRunning" into "Running"
func activityName(t string) string {
	name := strings.TrimPrefix(t, "HKWorkoutActivityType")
	if name == "" {
		return "Workout"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
