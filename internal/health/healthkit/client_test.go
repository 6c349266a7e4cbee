package healthkit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"activity-sync/internal/activity"
)

func setupBridge(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, server.Client(), nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestInit(t *testing.T) {
	calls := 0
	client := setupBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("Expected /health, got %s", r.URL.Path)
		}
		calls++
		w.WriteHeader(http.StatusOK)
	})

	// Repeated calls are fine
	for i := 0; i < 2; i++ {
		if err := client.Init(context.Background()); err != nil {
			t.Fatalf("Init failed: %v", err)
		}
	}
	if calls != 2 {
		t.Errorf("Expected 2 health checks, got %d", calls)
	}
}

func TestInitBridgeNotReady(t *testing.T) {
	client := setupBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if err := client.Init(context.Background()); err == nil {
		t.Error("Expected error when bridge is not ready")
	}
}

func TestQueryNewActivities(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	client := setupBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workouts" {
			t.Errorf("Expected /workouts, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("start"); got != since.Format(time.RFC3339Nano) {
			t.Errorf("Expected start %s, got %s", since.Format(time.RFC3339Nano), got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"workouts": [
			{
				"uuid": "A1",
				"workoutActivityType": "HKWorkoutActivityTypeRunning",
				"startDate": "2024-05-01T07:00:00Z",
				"endDate": "2024-05-01T07:30:00Z",
				"totalEnergyBurned": 310.5,
				"totalDistance": 5000,
				"heartRate": [
					{"date": "2024-05-01T07:10:00Z", "bpm": 150},
					{"date": "2024-05-01T07:05:00Z", "bpm": 140}
				],
				"route": [
					{"date": "2024-05-01T07:00:00Z", "latitude": 51.5, "longitude": -0.12, "altitude": 20}
				]
			},
			{
				"workoutActivityType": "HKWorkoutActivityTypeCycling",
				"startDate": "2024-05-01T12:00:00Z",
				"endDate": "2024-05-01T13:00:00Z",
				"duration": 3000
			},
			{"uuid": "bad-schema", "startDate": "2024-05-01T08:00:00Z", "endDate": "2024-05-01T09:00:00Z"},
			{"uuid": "bad-bpm", "workoutActivityType": "Walking", "startDate": "2024-05-01T08:00:00Z", "endDate": "2024-05-01T09:00:00Z", "heartRate": [{"date": "2024-05-01T08:00:00Z", "bpm": 999}]},
			{"uuid": "bad-date", "workoutActivityType": "Walking", "startDate": "yesterday", "endDate": "2024-05-01T09:00:00Z"},
			{"uuid": "backwards", "workoutActivityType": "Walking", "startDate": "2024-05-01T09:00:00Z", "endDate": "2024-05-01T08:00:00Z"},
			{"uuid": "too-late", "workoutActivityType": "Walking", "startDate": "2024-05-02T00:00:00Z", "endDate": "2024-05-02T01:00:00Z"}
		]}`)
	})

	activities, err := client.QueryNewActivities(context.Background(), since, until)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(activities) != 2 {
		t.Fatalf("Expected 2 valid activities, got %d: %v", len(activities), activity.Keys(activities))
	}

	run := activities[0]
	if run.ExternalID == nil || *run.ExternalID != "A1" {
		t.Errorf("Expected external id A1, got %v", run.ExternalID)
	}
	if run.ActivityName != "Running" {
		t.Errorf("Expected name Running, got %s", run.ActivityName)
	}
	if run.Source != activity.SourceHealthKit {
		t.Errorf("Expected source healthkit, got %s", run.Source)
	}
	if run.Duration != 1800 {
		t.Errorf("Expected derived duration 1800, got %f", run.Duration)
	}
	if run.Calories == nil || *run.Calories != 310.5 {
		t.Errorf("Expected calories 310.5, got %v", run.Calories)
	}
	if len(run.HeartRateSamples) != 2 || run.HeartRateSamples[0].BPM != 140 {
		t.Errorf("Expected heart rate sorted ascending, got %+v", run.HeartRateSamples)
	}
	if len(run.Route) != 1 || run.Route[0].Altitude == nil || *run.Route[0].Altitude != 20 {
		t.Errorf("Expected one route point with altitude, got %+v", run.Route)
	}

	ride := activities[1]
	if ride.ExternalID != nil {
		t.Errorf("Expected no external id, got %s", *ride.ExternalID)
	}
	if ride.Duration != 3000 {
		t.Errorf("Expected reported duration 3000, got %f", ride.Duration)
	}
	if ride.HeartRateSamples == nil {
		t.Error("Expected empty heart rate slice, got nil")
	}
}

func TestQueryNewActivitiesSelectsByEndTime(t *testing.T) {
	since := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)

	client := setupBridge(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"workouts": [
			{"uuid": "spans-since", "workoutActivityType": "Running", "startDate": "2024-05-01T09:40:00Z", "endDate": "2024-05-01T10:20:00Z"},
			{"uuid": "ended-before", "workoutActivityType": "Running", "startDate": "2024-05-01T09:00:00Z", "endDate": "2024-05-01T09:59:00Z"},
			{"uuid": "still-open", "workoutActivityType": "Running", "startDate": "2024-05-01T10:50:00Z", "endDate": "2024-05-01T11:10:00Z"}
		]}`)
	})

	activities, err := client.QueryNewActivities(context.Background(), since, until)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	keys := activity.Keys(activities)
	if len(keys) != 1 || keys[0] != "spans-since" {
		t.Errorf("Expected only the workout that ended in the window, got %v", keys)
	}
}

func TestQueryNewActivitiesTotalFailure(t *testing.T) {
	client := setupBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	})

	_, err := client.QueryNewActivities(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err == nil {
		t.Fatal("Expected error for failed bridge query")
	}
}

func TestQueryNewActivitiesMalformedResponse(t *testing.T) {
	client := setupBridge(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"workouts": not-json`)
	})

	_, err := client.QueryNewActivities(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err == nil {
		t.Fatal("Expected error for malformed response")
	}
}

func TestActivityName(t *testing.T) {
	tests := map[string]string{
		"HKWorkoutActivityTypeRunning": "Running",
		"walking":                      "Walking",
		"HKWorkoutActivityType":        "Workout",
	}
	for in, want := range tests {
		if got := activityName(in); got != want {
			t.Errorf("activityName(%q): expected %q, got %q", in, want, got)
		}
	}
}
