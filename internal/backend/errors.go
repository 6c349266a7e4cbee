package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is returned when the backend answers with a non-2xx status
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

func statusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err wraps a 401 from the backend
func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

// IsTooManyRequests reports whether err wraps a 429 from the backend
func IsTooManyRequests(err error) bool {
	return statusOf(err) == http.StatusTooManyRequests
}

// IsServerError reports whether err wraps a 5xx from the backend
func IsServerError(err error) bool {
	return statusOf(err) >= 500
}
