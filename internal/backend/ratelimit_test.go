package backend

import (
	"testing"
	"time"
)

func TestRateLimiterUpdate(t *testing.T) {
	rl := NewRateLimiter()

	rl.Update(100, 25, 1000, 250)

	status := rl.Status()

	if status.LimitWindow != 100 {
		t.Errorf("Expected limitWindow 100, got %d", status.LimitWindow)
	}
	if status.UsageWindow != 25 {
		t.Errorf("Expected usageWindow 25, got %d", status.UsageWindow)
	}
	if status.LimitDaily != 1000 {
		t.Errorf("Expected limitDaily 1000, got %d", status.LimitDaily)
	}
	if status.UsageDaily != 250 {
		t.Errorf("Expected usageDaily 250, got %d", status.UsageDaily)
	}

	if status.UsageWindowPct != 25.0 {
		t.Errorf("Expected usageWindowPct 25.0, got %f", status.UsageWindowPct)
	}
	if status.UsageDailyPct != 25.0 {
		t.Errorf("Expected usageDailyPct 25.0, got %f", status.UsageDailyPct)
	}
}

func TestRateLimiterUnknownLimits(t *testing.T) {
	status := NewRateLimiter().Status()

	if status.LimitWindow != 0 || status.LimitDaily != 0 {
		t.Errorf("Expected no known limits, got %d/%d", status.LimitWindow, status.LimitDaily)
	}
	if status.UsageWindowPct != 0 || status.UsageDailyPct != 0 {
		t.Errorf("Expected 0%% usage with unknown limits, got %f/%f", status.UsageWindowPct, status.UsageDailyPct)
	}
	if !status.LastUpdated.IsZero() {
		t.Error("Expected LastUpdated to be zero before first update")
	}
}

func TestRateLimiterIsNearLimit(t *testing.T) {
	rl := NewRateLimiter()

	rl.Update(100, 25, 1000, 250)
	if rl.Status().IsNearLimit(80) {
		t.Error("Expected IsNearLimit(80) to be false at 25% usage")
	}

	rl.Update(100, 90, 1000, 900)
	if !rl.Status().IsNearLimit(80) {
		t.Error("Expected IsNearLimit(80) to be true at 90% usage")
	}

	// Daily bucket alone can trip it
	rl.Update(100, 10, 1000, 950)
	if !rl.Status().IsNearLimit(90) {
		t.Error("Expected IsNearLimit(90) to be true when daily at 95%")
	}
}

func TestRateLimiterLastUpdated(t *testing.T) {
	rl := NewRateLimiter()

	before := time.Now()
	rl.Update(100, 25, 1000, 250)
	after := time.Now()

	status := rl.Status()

	if status.LastUpdated.Before(before) || status.LastUpdated.After(after) {
		t.Error("LastUpdated timestamp not within expected range")
	}
}

func TestRateLimiterConcurrency(t *testing.T) {
	rl := NewRateLimiter()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				rl.Update(100, j, 1000, j*10)
				_ = rl.Status().IsNearLimit(80)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
