// Package healthkit reads workouts from the iOS companion's HealthKit bridge.
package healthkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"activity-sync/internal/activity"
	"activity-sync/internal/metrics"
)

const schemaURL = "healthkit-workout.json"

// Client queries the HealthKit bridge over HTTP
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	schema     *jsonschema.Schema
}

// NewClient creates a bridge client. The workout schema is compiled once here.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workoutSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse workout schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add workout schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile workout schema: %w", err)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
		schema:     schema,
	}, nil
}

// Source reports the platform tag stamped on every activity
func (c *Client) Source() activity.Source {
	return activity.SourceHealthKit
}

// Init checks that the bridge is reachable. It holds no state so repeat calls are cheap.
func (c *Client) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthkit bridge unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthkit bridge not ready: status %d", resp.StatusCode)
	}
	return nil
}

type workoutsResponse struct {
	Workouts []json.RawMessage `json:"workouts"`
}

// QueryNewActivities returns workouts that ended in [since, until).
// Records that fail schema validation or conversion are skipped.
func (c *Client) QueryNewActivities(ctx context.Context, since, until time.Time) ([]activity.NormalizedActivity, error) {
	source := string(c.Source())

	// The bridge matches on workout end date
	query := url.Values{}
	query.Set("start", since.UTC().Format(time.RFC3339Nano))
	query.Set("end", until.UTC().Format(time.RFC3339Nano))

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/workouts?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		metrics.HealthQueryFailuresTotal.WithLabelValues(source).Inc()
		return nil, fmt.Errorf("healthkit query failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("healthkit_query", "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		metrics.HealthQueryFailuresTotal.WithLabelValues(source).Inc()
		return nil, fmt.Errorf("healthkit query failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payload workoutsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.HealthQueryFailuresTotal.WithLabelValues(source).Inc()
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	activities := make([]activity.NormalizedActivity, 0, len(payload.Workouts))
	for i, raw := range payload.Workouts {
		metrics.HealthRecordsTotal.WithLabelValues(source).Inc()

		a, reason, err := c.convert(raw)
		if err != nil {
			metrics.HealthRecordsSkippedTotal.WithLabelValues(source, reason).Inc()
			c.logger.Warn("Skipping healthkit workout", "index", i, "reason", reason, "error", err)
			continue
		}

		if !a.EndedIn(since, until) {
			metrics.HealthRecordsSkippedTotal.WithLabelValues(source, metrics.SkipReasonOutside).Inc()
			continue
		}

		activities = append(activities, *a)
	}

	return activities, nil
}

// convert validates and normalizes a single bridge record.
// On failure it also returns the skip reason label.
func (c *Client) convert(raw json.RawMessage) (*activity.NormalizedActivity, string, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, metrics.SkipReasonDecode, fmt.Errorf("failed to parse workout: %w", err)
	}
	if err := c.schema.Validate(inst); err != nil {
		return nil, metrics.SkipReasonInvalid, err
	}

	var w workout
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, metrics.SkipReasonDecode, fmt.Errorf("failed to decode workout: %w", err)
	}

	a := w.toActivity()
	if err := a.Normalize(); err != nil {
		return nil, metrics.SkipReasonInvalid, err
	}
	return a, "", nil
}
