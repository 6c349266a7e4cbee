// Package backend submits activities to the remote sync service.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"activity-sync/internal/metrics"
)

const (
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 30 * time.Second
)

// Client is a backend API client
type Client struct {
	httpClient   *http.Client
	baseURL      string
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	logger       *slog.Logger
	rateLimiter  *RateLimiter
}

// NewClient creates a new backend API client.
// maxRetries is the number of extra attempts after the first one.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		maxRetries:   maxRetries,
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
		logger:       logger,
		rateLimiter:  NewRateLimiter(),
	}
}

// doRequest performs an authenticated HTTP request with retries and returns the response body.
// Transport errors, 5xx and 429 are retried; any other non-2xx status fails immediately.
func (c *Client) doRequest(ctx context.Context, operation, method, path, token string, body []byte, headers map[string]string) ([]byte, error) {
	var lastErr error
	delay := c.initialDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying request", "operation", operation, "attempt", attempt, "delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, c.maxDelay)
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			metrics.BackendRequestsTotal.WithLabelValues(operation, "error").Inc()
			lastErr = err
			c.logger.Error("request failed", "operation", operation, "path", path, "error", err, "attempt", attempt)
			continue
		}

		statusCode := strconv.Itoa(resp.StatusCode)
		metrics.BackendRequestsTotal.WithLabelValues(operation, statusCode).Inc()
		metrics.BackendRequestDuration.WithLabelValues(operation, statusCode).Observe(duration.Seconds())

		c.parseRateLimitHeaders(resp.Header)

		c.logger.Info("backend_api_request", "operation", operation, "method", method, "path", path, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response: %w", readErr)
			}
			return respBody, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			if retryAfter := parseRetryAfter(resp.Header); retryAfter > 0 {
				delay = min(retryAfter, c.maxDelay)
			}
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
			continue
		case resp.StatusCode >= 500:
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
			continue
		default:
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseRateLimitHeaders extracts and updates rate limit information from response headers.
// Both headers carry "window,daily" pairs.
func (c *Client) parseRateLimitHeaders(headers http.Header) {
	limitHeader := headers.Get("X-RateLimit-Limit")
	usageHeader := headers.Get("X-RateLimit-Usage")
	if limitHeader == "" || usageHeader == "" {
		return
	}

	limits := strings.Split(limitHeader, ",")
	usages := strings.Split(usageHeader, ",")
	if len(limits) != 2 || len(usages) != 2 {
		return
	}

	limitWindow, _ := strconv.Atoi(strings.TrimSpace(limits[0]))
	limitDaily, _ := strconv.Atoi(strings.TrimSpace(limits[1]))
	usageWindow, _ := strconv.Atoi(strings.TrimSpace(usages[0]))
	usageDaily, _ := strconv.Atoi(strings.TrimSpace(usages[1]))

	c.rateLimiter.Update(limitWindow, usageWindow, limitDaily, usageDaily)

	metrics.BackendRateLimitUsage.WithLabelValues("window").Set(float64(usageWindow))
	metrics.BackendRateLimitUsage.WithLabelValues("daily").Set(float64(usageDaily))

	c.logger.Debug("rate_limit",
		"limit_window", limitWindow,
		"usage_window", usageWindow,
		"limit_daily", limitDaily,
		"usage_daily", usageDaily,
	)
}

// parseRetryAfter extracts retry delay from Retry-After header
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// RateLimitStatus returns the current rate limit status
func (c *Client) RateLimitStatus() RateLimitStatus {
	return c.rateLimiter.Status()
}
