package health

import (
	"testing"

	"activity-sync/internal/activity"
	"activity-sync/internal/config"
)

func TestNewSelectsAdapterByPlatform(t *testing.T) {
	tests := []struct {
		platform string
		want     activity.Source
	}{
		{config.PlatformHealthKit, activity.SourceHealthKit},
		{config.PlatformHealthConnect, activity.SourceHealthConnect},
	}

	for _, tt := range tests {
		cfg := &config.Config{
			HealthPlatform:     tt.platform,
			HealthKitBridgeURL: "http://127.0.0.1:4103",
			FITExportDir:       t.TempDir(),
		}

		adapter, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New(%s) failed: %v", tt.platform, err)
		}
		if adapter.Source() != tt.want {
			t.Errorf("Expected source %s for platform %s, got %s", tt.want, tt.platform, adapter.Source())
		}
	}
}

func TestNewRejectsUnknownPlatform(t *testing.T) {
	if _, err := New(&config.Config{HealthPlatform: "fitbit"}, nil); err == nil {
		t.Error("Expected error for unknown platform")
	}
}
