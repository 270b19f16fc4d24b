package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/scmguard/scmguard/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Policy service configuration
	Policy PolicyConfig

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

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis settings for the policy cache and rate limiter
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// PolicyConfig holds remote policy service settings
type PolicyConfig struct {
	// BaseURL of the policy service. On-premise installs point this at
	// the bundled policy service instead of the hosted one.
	BaseURL string
	Timeout time.Duration

	// CacheTTL bounds how stale a cached policy answer may be
	CacheTTL time.Duration

	// OnPremise pins every account to the on-premise plan and skips
	// subscription lookups entirely
	OnPremise bool

	// CleanupSchedule is a cron expression for expired ACL grant cleanup
	CleanupSchedule string
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
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Policy:        loadPolicyConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SCMGUARD_HOST", "0.0.0.0"),
		Port:            getEnv("SCMGUARD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SCMGUARD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SCMGUARD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SCMGUARD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SCMGUARD_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SCMGUARD_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("SCMGUARD_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("SCMGUARD_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("SCMGUARD_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("SCMGUARD_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("SCMGUARD_REDIS_URL", ""),
		Password: getEnv("SCMGUARD_REDIS_PASSWORD", ""),
		DB:       getEnvInt("SCMGUARD_REDIS_DB", 0),
		PoolSize: getEnvInt("SCMGUARD_REDIS_POOL_SIZE", 10),
	}
}

func loadPolicyConfig() PolicyConfig {
	return PolicyConfig{
		BaseURL:         getEnv("SCMGUARD_POLICY_URL", ""),
		Timeout:         getEnvDuration("SCMGUARD_POLICY_TIMEOUT", 5*time.Second),
		CacheTTL:        getEnvDuration("SCMGUARD_POLICY_CACHE_TTL", time.Minute),
		OnPremise:       getEnvBool("SCMGUARD_ON_PREMISE", false),
		CleanupSchedule: getEnv("SCMGUARD_ACL_CLEANUP_SCHEDULE", "@hourly"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("SCMGUARD_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("SCMGUARD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("SCMGUARD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("SCMGUARD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("SCMGUARD_OTEL_SERVICE_NAME", "scmguard"),
		OTelServiceVersion: getEnv("SCMGUARD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("SCMGUARD_OTEL_INSECURE", true),
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

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Policy.BaseURL == "" {
		return fmt.Errorf("policy service URL is required")
	}
	if c.Policy.Timeout <= 0 {
		return fmt.Errorf("policy timeout must be positive")
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
