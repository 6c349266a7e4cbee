package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigWithDefaults(t *testing.T) {
	// Set only required env vars
	setTestEnv(t, map[string]string{
		"BACKEND_URL":     "https://api.example.com/",
		"HEALTH_PLATFORM": PlatformHealthConnect,
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Check defaults
	if config.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", config.Host)
	}
	if config.Port != 4102 {
		t.Errorf("Expected default port 4102, got %d", config.Port)
	}
	if config.DatabasePath != "./activity-sync.db" {
		t.Errorf("Expected default database path './activity-sync.db', got %s", config.DatabasePath)
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", config.LogLevel)
	}
	if config.SyncSchedule != "@every 15m" {
		t.Errorf("Expected default schedule '@every 15m', got %s", config.SyncSchedule)
	}
	if config.BackendTimeout != 30*time.Second {
		t.Errorf("Expected default backend timeout 30s, got %s", config.BackendTimeout)
	}
	if config.BackendMaxRetries != 2 {
		t.Errorf("Expected default backend retries 2, got %d", config.BackendMaxRetries)
	}
	if config.SyncWindowOverlap != 10*time.Minute {
		t.Errorf("Expected default window overlap 10m, got %s", config.SyncWindowOverlap)
	}
	if config.DeviceLookback != 720*time.Hour {
		t.Errorf("Expected default lookback 720h, got %s", config.DeviceLookback)
	}
	if config.FreezeWatermarkOnSourceFailure {
		t.Error("Expected watermark freeze on source failure to default to false")
	}
	if config.MetricsEnabled {
		t.Error("Expected metrics to default to disabled")
	}

	// Trailing slash is trimmed
	if config.BackendURL != "https://api.example.com" {
		t.Errorf("Expected BACKEND_URL 'https://api.example.com', got %s", config.BackendURL)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	setTestEnv(t, map[string]string{
		"HOST":                               "0.0.0.0",
		"PORT":                               "8080",
		"DATABASE_PATH":                      "/tmp/test.db",
		"BACKEND_URL":                        "https://api.example.com",
		"BACKEND_TIMEOUT":                    "5s",
		"BACKEND_MAX_RETRIES":                "0",
		"HEALTH_PLATFORM":                    PlatformHealthKit,
		"HEALTHKIT_BRIDGE_URL":               "http://10.0.0.2:4103",
		"SYNC_SCHEDULE":                      "*/5 * * * *",
		"WATCH_EXPORT_DIR":                   "true",
		"FREEZE_WATERMARK_ON_SOURCE_FAILURE": "true",
		"METRICS_ENABLED":                    "1",
		"LOG_LEVEL":                          "debug",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %s", config.Host)
	}
	if config.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.Port)
	}
	if config.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path '/tmp/test.db', got %s", config.DatabasePath)
	}
	if config.BackendTimeout != 5*time.Second {
		t.Errorf("Expected backend timeout 5s, got %s", config.BackendTimeout)
	}
	if config.BackendMaxRetries != 0 {
		t.Errorf("Expected backend retries 0, got %d", config.BackendMaxRetries)
	}
	if config.HealthPlatform != PlatformHealthKit {
		t.Errorf("Expected platform healthkit, got %s", config.HealthPlatform)
	}
	if config.HealthKitBridgeURL != "http://10.0.0.2:4103" {
		t.Errorf("Expected bridge URL 'http://10.0.0.2:4103', got %s", config.HealthKitBridgeURL)
	}
	if config.SyncSchedule != "*/5 * * * *" {
		t.Errorf("Expected schedule '*/5 * * * *', got %s", config.SyncSchedule)
	}
	if !config.WatchExportDir {
		t.Error("Expected export dir watch to be enabled")
	}
	if !config.FreezeWatermarkOnSourceFailure {
		t.Error("Expected watermark freeze to be enabled")
	}
	if !config.MetricsEnabled {
		t.Error("Expected metrics to be enabled")
	}
	if config.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %s", config.LogLevel)
	}
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	// Create a temporary .env file
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	envContent := `# Test .env file
PORT=9000
BACKEND_URL=https://env-file.example.com
HEALTH_PLATFORM=health_connect
FIT_EXPORT_DIR=/sdcard/exports
LOG_LEVEL=warn
`
	if err := os.WriteFile(envFile, []byte(envContent), 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}

	// Change to temp directory
	oldDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldDir)

	// Clear any existing env vars; godotenv sets process env so clean up afterwards too
	clearTestEnv(t)
	t.Cleanup(func() { clearTestEnv(t) })

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Port != 9000 {
		t.Errorf("Expected port 9000 from .env, got %d", config.Port)
	}
	if config.BackendURL != "https://env-file.example.com" {
		t.Errorf("Expected backend URL from .env, got %s", config.BackendURL)
	}
	if config.FITExportDir != "/sdcard/exports" {
		t.Errorf("Expected export dir from .env, got %s", config.FITExportDir)
	}
	if config.LogLevel != "warn" {
		t.Errorf("Expected log level 'warn' from .env, got %s", config.LogLevel)
	}
}

func TestEnvVarsPrecedenceOverEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	envContent := `BACKEND_URL=https://from-file.example.com
LOG_LEVEL=warn
`
	if err := os.WriteFile(envFile, []byte(envContent), 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}

	oldDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldDir)

	setTestEnv(t, map[string]string{
		"BACKEND_URL":     "https://from-env.example.com",
		"HEALTH_PLATFORM": PlatformHealthConnect,
	})
	t.Cleanup(func() { clearTestEnv(t) })

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// godotenv never overrides variables that are already set
	if config.BackendURL != "https://from-env.example.com" {
		t.Errorf("Expected env var to win, got %s", config.BackendURL)
	}
	if config.LogLevel != "warn" {
		t.Errorf("Expected log level 'warn' from .env, got %s", config.LogLevel)
	}
}

func TestValidationMissingBackendURL(t *testing.T) {
	setTestEnv(t, map[string]string{
		"HEALTH_PLATFORM": PlatformHealthConnect,
	})

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for missing BACKEND_URL")
	}
}

func TestValidationUnknownPlatform(t *testing.T) {
	setTestEnv(t, map[string]string{
		"BACKEND_URL":     "https://api.example.com",
		"HEALTH_PLATFORM": "fitbit",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for unsupported HEALTH_PLATFORM")
	}
}

func TestInvalidNumbersFallBackToDefaults(t *testing.T) {
	setTestEnv(t, map[string]string{
		"BACKEND_URL":     "https://api.example.com",
		"HEALTH_PLATFORM": PlatformHealthConnect,
		"PORT":            "not-a-port",
		"BACKEND_TIMEOUT": "soon",
		"METRICS_ENABLED": "maybe",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Port != 4102 {
		t.Errorf("Expected fallback port 4102, got %d", config.Port)
	}
	if config.BackendTimeout != 30*time.Second {
		t.Errorf("Expected fallback timeout 30s, got %s", config.BackendTimeout)
	}
	if config.MetricsEnabled {
		t.Error("Expected fallback metrics disabled")
	}
}

func TestDefaultPlatform(t *testing.T) {
	tests := map[string]string{
		"ios":     PlatformHealthKit,
		"darwin":  PlatformHealthKit,
		"android": PlatformHealthConnect,
		"linux":   PlatformHealthConnect,
	}
	for goos, want := range tests {
		if got := DefaultPlatform(goos); got != want {
			t.Errorf("DefaultPlatform(%s): expected %s, got %s", goos, want, got)
		}
	}
}

// Helper function to set test environment variables
func setTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()

	// Clear all relevant env vars first
	clearTestEnv(t)

	// Set provided vars
	for key, value := range vars {
		os.Setenv(key, value)
		t.Cleanup(func() {
			os.Unsetenv(key)
		})
	}
}

// Helper function to clear all config-related environment variables
func clearTestEnv(t *testing.T) {
	t.Helper()

	envVars := []string{
		"HOST", "PORT", "CONTROL_API_KEY", "DATABASE_PATH",
		"BACKEND_URL", "BACKEND_TIMEOUT", "BACKEND_MAX_RETRIES", "AUTH_TOKEN",
		"HEALTH_PLATFORM", "HEALTHKIT_BRIDGE_URL", "FIT_EXPORT_DIR", "DEVICE_LOOKBACK",
		"SYNC_SCHEDULE", "WATCH_EXPORT_DIR", "FREEZE_WATERMARK_ON_SOURCE_FAILURE",
		"METRICS_ENABLED", "METRICS_HOST", "METRICS_PORT", "LOG_LEVEL",
	}

	for _, key := range envVars {
		os.Unsetenv(key)
	}
}
