package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Health platforms the engine can read from
const (
	PlatformHealthKit     = "healthkit"
	PlatformHealthConnect = "health_connect"
)

// Config holds all application configuration
type Config struct {
	// Control API configuration
	Host          string
	Port          int
	ControlAPIKey string

	// Database configuration
	DatabasePath string

	// Backend configuration
	BackendURL        string
	BackendTimeout    time.Duration
	BackendMaxRetries int

	// Authentication
	AuthToken string

	// Health source configuration
	HealthPlatform     string
	HealthKitBridgeURL string
	FITExportDir       string
	DeviceLookback     time.Duration

	// Sync behaviour
	SyncSchedule                   string
	SyncWindowOverlap              time.Duration
	WatchExportDir                 bool
	FreezeWatermarkOnSourceFailure bool

	// Metrics configuration
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int

	// Logging configuration
	LogLevel string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is applied first if present.
// It fails fast if required variables are missing
func Load() (*Config, error) {
	// Missing .env is normal outside development
	_ = godotenv.Load()

	cfg := &Config{
		// Optional values with defaults
		Host:                           getEnv("HOST", "localhost"),
		Port:                           getEnvInt("PORT", 4102),
		ControlAPIKey:                  os.Getenv("CONTROL_API_KEY"),
		DatabasePath:                   getEnv("DATABASE_PATH", "./activity-sync.db"),
		BackendTimeout:                 getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),
		BackendMaxRetries:              getEnvInt("BACKEND_MAX_RETRIES", 2),
		AuthToken:                      os.Getenv("AUTH_TOKEN"),
		HealthPlatform:                 getEnv("HEALTH_PLATFORM", DefaultPlatform(runtime.GOOS)),
		HealthKitBridgeURL:             getEnv("HEALTHKIT_BRIDGE_URL", "http://127.0.0.1:4103"),
		FITExportDir:                   getEnv("FIT_EXPORT_DIR", "./exports"),
		DeviceLookback:                 getEnvDuration("DEVICE_LOOKBACK", 30*24*time.Hour),
		SyncSchedule:                   getEnv("SYNC_SCHEDULE", "@every 15m"),
		SyncWindowOverlap:              getEnvDuration("SYNC_WINDOW_OVERLAP", 10*time.Minute),
		WatchExportDir:                 getEnvBool("WATCH_EXPORT_DIR", false),
		FreezeWatermarkOnSourceFailure: getEnvBool("FREEZE_WATERMARK_ON_SOURCE_FAILURE", false),
		MetricsEnabled:                 getEnvBool("METRICS_ENABLED", false),
		MetricsHost:                    getEnv("METRICS_HOST", "localhost"),
		MetricsPort:                    getEnvInt("METRICS_PORT", 9102),
		LogLevel:                       getEnv("LOG_LEVEL", "info"),
	}

	// Required values
	var missingVars []string

	cfg.BackendURL = strings.TrimRight(os.Getenv("BACKEND_URL"), "/")
	if cfg.BackendURL == "" {
		missingVars = append(missingVars, "BACKEND_URL")
	}

	if len(missingVars) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	switch cfg.HealthPlatform {
	case PlatformHealthKit, PlatformHealthConnect:
	default:
		return nil, fmt.Errorf("unsupported HEALTH_PLATFORM %q (expected %s or %s)",
			cfg.HealthPlatform, PlatformHealthKit, PlatformHealthConnect)
	}

	if cfg.SyncWindowOverlap < 0 {
		cfg.SyncWindowOverlap = 0
	}

	if cfg.BackendMaxRetries < 0 {
		cfg.BackendMaxRetries = 0
	}

	return cfg, nil
}

// DefaultPlatform picks the health platform for an operating system
func DefaultPlatform(goos string) string {
	if goos == "ios" || goos == "darwin" {
		return PlatformHealthKit
	}
	return PlatformHealthConnect
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvDuration gets a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
