package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docstack/docstack/pkg/observability"
	"github.com/docstack/docstack/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Audit trail configuration
	Audit AuditConfig

	// Orphaned blob reconciler configuration
	Reconciler ReconcilerConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// DBEnabled writes audit events to the audit_logs table
	DBEnabled bool

	// FilePath appends NDJSON audit events to a file when set
	FilePath     string
	FileMaxSize  int64
	FileMaxFiles int

	// BufferSize is the async delivery queue depth; events beyond it
	// are dropped rather than blocking request handling
	BufferSize int
}

// ReconcilerConfig holds orphaned blob sweep settings
type ReconcilerConfig struct {
	Enabled bool

	// Schedule is a cron expression
	Schedule string

	// GracePeriod is how old an unreferenced object must be before
	// it is eligible for removal
	GracePeriod time.Duration
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled bool

	// Distributed uses Redis-backed limits shared across instances;
	// otherwise limits are per-process in memory
	Distributed bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Audit:         loadAuditConfig(),
		Reconciler:    loadReconcilerConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("DOCSTACK_HOST", "0.0.0.0"),
		Port:            getEnv("DOCSTACK_PORT", "8080"),
		ReadTimeout:     getEnvDuration("DOCSTACK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("DOCSTACK_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:     getEnvDuration("DOCSTACK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("DOCSTACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("DOCSTACK_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("DOCSTACK_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("DOCSTACK_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("DOCSTACK_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("DOCSTACK_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// S3 config
	if s3Endpoint := getEnv("DOCSTACK_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("DOCSTACK_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("DOCSTACK_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("DOCSTACK_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("DOCSTACK_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("DOCSTACK_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	// Redis config
	if redisURL := getEnv("DOCSTACK_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("DOCSTACK_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("DOCSTACK_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}

	return cfg
}

// loadAuditConfig loads audit trail configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		DBEnabled:    getEnvBool("DOCSTACK_AUDIT_DB_ENABLED", true),
		FilePath:     getEnv("DOCSTACK_AUDIT_FILE_PATH", ""),
		FileMaxSize:  getEnvInt64("DOCSTACK_AUDIT_FILE_MAX_SIZE", 100*1024*1024),
		FileMaxFiles: getEnvInt("DOCSTACK_AUDIT_FILE_MAX_FILES", 10),
		BufferSize:   getEnvInt("DOCSTACK_AUDIT_BUFFER_SIZE", 1024),
	}
}

// loadReconcilerConfig loads reconciler configuration from environment
func loadReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Enabled:     getEnvBool("DOCSTACK_RECONCILER_ENABLED", true),
		Schedule:    getEnv("DOCSTACK_RECONCILER_SCHEDULE", "0 3 * * *"),
		GracePeriod: getEnvDuration("DOCSTACK_RECONCILER_GRACE_PERIOD", 24*time.Hour),
	}
}

// loadRateLimitConfig loads rate limiting configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:     getEnvBool("DOCSTACK_RATELIMIT_ENABLED", true),
		Distributed: getEnvBool("DOCSTACK_RATELIMIT_DISTRIBUTED", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("DOCSTACK_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("DOCSTACK_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("DOCSTACK_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("DOCSTACK_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("DOCSTACK_OTEL_SERVICE_NAME", "docstack"),
		OTelServiceVersion: getEnv("DOCSTACK_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("DOCSTACK_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required")
	}

	if c.Audit.BufferSize <= 0 {
		return fmt.Errorf("audit buffer size must be positive")
	}

	if c.Reconciler.Enabled {
		if c.Reconciler.Schedule == "" {
			return fmt.Errorf("reconciler schedule is required when the reconciler is enabled")
		}
		if c.Reconciler.GracePeriod <= 0 {
			return fmt.Errorf("reconciler grace period must be positive")
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.Distributed && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required for distributed rate limiting")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
