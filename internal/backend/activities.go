package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"activity-sync/internal/activity"
	"activity-sync/internal/metrics"
)

// batchNamespace scopes idempotency keys derived from batch contents
var batchNamespace = uuid.MustParse("6f1c7a52-4a8e-4d4b-9a57-2f0d2b1c9e31")

// SubmitResult is the backend's verdict on an accepted batch
type SubmitResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

type batchRequest struct {
	Source     activity.Source               `json:"source"`
	Activities []activity.NormalizedActivity `json:"activities"`
}

type syncedIDsResponse struct {
	IDs []string `json:"ids"`
}

// IdempotencyKey derives a stable key for a batch so that a retried
// submission of the same activities is recognisable by the backend
func IdempotencyKey(source activity.Source, activities []activity.NormalizedActivity) string {
	name := string(source) + "\n" + strings.Join(activity.Keys(activities), "\n")
	return uuid.NewSHA1(batchNamespace, []byte(name)).String()
}

// SubmitBatch sends activities from a single source in one request.
// Any error means the whole batch was rejected.
func (c *Client) SubmitBatch(ctx context.Context, activities []activity.NormalizedActivity, source activity.Source, token string) (*SubmitResult, error) {
	body, err := json.Marshal(batchRequest{Source: source, Activities: activities})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{"Idempotency-Key": IdempotencyKey(source, activities)}

	respBody, err := c.doRequest(ctx, metrics.OpSubmitBatch, "POST", "/v1/activities/batch", token, body, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to submit batch: %w", err)
	}

	var result SubmitResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}

	return &result, nil
}

// FetchRemoteSyncedIDs returns the external identifiers the backend already holds
func (c *Client) FetchRemoteSyncedIDs(ctx context.Context, token string) ([]string, error) {
	respBody, err := c.doRequest(ctx, metrics.OpFetchSyncedID, "GET", "/v1/activities/synced-ids", token, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch synced ids: %w", err)
	}

	var resp syncedIDsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode synced ids: %w", err)
	}

	return resp.IDs, nil
}
