package backend

import (
	"sync"
	"time"
)

// RateLimiter tracks the backend's advertised rate limits.
// The backend reports a short rolling window and a daily bucket.
type RateLimiter struct {
	mu          sync.RWMutex
	limitWindow int
	usageWindow int
	limitDaily  int
	usageDaily  int
	lastUpdated time.Time
}

// RateLimitStatus is a snapshot of the rate limits
type RateLimitStatus struct {
	LimitWindow    int       `json:"limitWindow"`
	UsageWindow    int       `json:"usageWindow"`
	LimitDaily     int       `json:"limitDaily"`
	UsageDaily     int       `json:"usageDaily"`
	UsageWindowPct float64   `json:"usageWindowPct"`
	UsageDailyPct  float64   `json:"usageDailyPct"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// NewRateLimiter creates a rate limiter with no known limits
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{}
}

// Update records the latest limits and usage
func (rl *RateLimiter) Update(limitWindow, usageWindow, limitDaily, usageDaily int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limitWindow = limitWindow
	rl.usageWindow = usageWindow
	rl.limitDaily = limitDaily
	rl.usageDaily = usageDaily
	rl.lastUpdated = time.Now()
}

// Status returns the current rate limit status
func (rl *RateLimiter) Status() RateLimitStatus {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return RateLimitStatus{
		LimitWindow:    rl.limitWindow,
		UsageWindow:    rl.usageWindow,
		LimitDaily:     rl.limitDaily,
		UsageDaily:     rl.usageDaily,
		UsageWindowPct: percent(rl.usageWindow, rl.limitWindow),
		UsageDailyPct:  percent(rl.usageDaily, rl.limitDaily),
		LastUpdated:    rl.lastUpdated,
	}
}

// IsNearLimit returns true if either bucket is at or above threshold percent
func (s RateLimitStatus) IsNearLimit(threshold float64) bool {
	return s.UsageWindowPct >= threshold || s.UsageDailyPct >= threshold
}

func percent(usage, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(usage) / float64(limit) * 100
}
