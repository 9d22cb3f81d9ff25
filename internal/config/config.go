// Package config provides configuration management for the replication worker.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the replication worker.
type Config struct {
	// Temporal settings
	TemporalAddress   string
	TemporalNamespace string
	TaskQueue         string

	// Control plane settings
	ControlPlaneURL       string
	ControlPlaneToken     string
	ControlPlaneTimeout   time.Duration
	ControlPlaneRateLimit float64
	ControlPlaneRateBurst int

	// Retry settings
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// Secret store settings
	SecretsDatabaseURL string

	// Feature flags
	FeatureFlagFile string

	// State archive settings
	StateArchiveEnabled bool
	StateArchiveDir     string
	MinioEndpoint       string
	MinioAccessKey      string
	MinioSecretKey      string
	MinioBucket         string
	MinioUseSSL         bool

	// Server settings
	HealthGRPCAddr string
	MetricsAddr    string
	LogLevel       string
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "127.0.0.1:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TaskQueue:         getEnv("REPLICATION_TASK_QUEUE", "replication"),

		ControlPlaneURL:       getEnv("CONTROL_PLANE_URL", "http://localhost:8001/api"),
		ControlPlaneToken:     getEnv("CONTROL_PLANE_TOKEN", ""),
		ControlPlaneTimeout:   getEnvDuration("CONTROL_PLANE_TIMEOUT", 30*time.Second),
		ControlPlaneRateLimit: getEnvFloat("CONTROL_PLANE_RATE_LIMIT", 20),
		ControlPlaneRateBurst: getEnvInt("CONTROL_PLANE_RATE_BURST", 10),

		RetryMaxAttempts:  clamp(getEnvInt("RETRY_MAX_ATTEMPTS", 5), 1, 5),
		RetryInitialDelay: getEnvDuration("RETRY_INITIAL_DELAY", 10*time.Millisecond),
		RetryMaxDelay:     getEnvDuration("RETRY_MAX_DELAY", 100*time.Millisecond),

		SecretsDatabaseURL: getEnv("SECRETS_DATABASE_URL", os.Getenv("DATABASE_URL")),

		FeatureFlagFile: getEnv("FEATURE_FLAG_FILE", ""),

		StateArchiveEnabled: getEnvBool("STATE_ARCHIVE_ENABLED", true),
		StateArchiveDir:     getEnv("STATE_ARCHIVE_DIR", filepath.Join(os.TempDir(), "replication-state-archive")),
		MinioEndpoint:       getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:      getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:      getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:         getEnv("MINIO_BUCKET", "replication-state-archive"),
		MinioUseSSL:         getEnvBool("MINIO_USE_SSL", false),

		HealthGRPCAddr: getEnv("HEALTH_GRPC_ADDR", ":7081"),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9464"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
