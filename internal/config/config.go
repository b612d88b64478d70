package config

import (
	"os"
	"strconv"
	"time"

	"powersvc/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig
	Compute   ComputeConfig
	Limits    LimitsConfig
	Ledger    LedgerConfig
	Profiling ProfilingConfig
	LogLevel  string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port            string
	GinMode         string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// ComputeConfig holds worker pool and deadline settings
type ComputeConfig struct {
	Timeout           time.Duration
	WorkerIdleTimeout time.Duration
	MaxWorkers        int64
}

// LimitsConfig bounds the combinatorial size of accepted designs
type LimitsConfig struct {
	MaxGroups int
	MaxCases  int
}

// LedgerConfig selects the run ledger store: memory, postgres or sqlite.
// An empty Driver disables it.
type LedgerConfig struct {
	Driver string
	URL    string
}

// ProfilingConfig holds ops/pprof listener settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// Defaults used when the environment is silent
const (
	DefaultComputeTimeout = 300 * time.Second
	DefaultIdleTimeout    = 60 * time.Second
	DefaultMaxGroups      = 100
	DefaultMaxCases       = 72
	DefaultMaxBodyBytes   = 4 << 20
)

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:    *loadServerConfig(),
		Compute:   *loadComputeConfig(),
		Limits:    *loadLimitsConfig(),
		Ledger:    *loadLedgerConfig(),
		Profiling: *loadProfilingConfig(),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            getEnvOrDefault("PORT", "8080"),
		GinMode:         getEnvOrDefault("GIN_MODE", "release"),
		MaxBodyBytes:    int64(getEnvIntOrDefault("MAX_BODY_BYTES", DefaultMaxBodyBytes)),
		ShutdownTimeout: getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadComputeConfig() *ComputeConfig {
	return &ComputeConfig{
		Timeout:           getEnvDurationOrDefault("COMPUTE_TIMEOUT", DefaultComputeTimeout),
		WorkerIdleTimeout: getEnvDurationOrDefault("WORKER_IDLE_TIMEOUT", DefaultIdleTimeout),
		MaxWorkers:        int64(getEnvIntOrDefault("MAX_WORKERS", 0)),
	}
}

func loadLimitsConfig() *LimitsConfig {
	return &LimitsConfig{
		MaxGroups: getEnvIntOrDefault("MAX_GROUPS", DefaultMaxGroups),
		MaxCases:  getEnvIntOrDefault("MAX_CASES", DefaultMaxCases),
	}
}

func loadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		Driver: getEnvOrDefault("LEDGER_DRIVER", ""),
		URL:    getEnvOrDefault("DATABASE_URL", ""),
	}
}

func loadProfilingConfig() *ProfilingConfig {
	return &ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", true),
	}
}

func validateConfig(config *Config) error {
	if config.Compute.Timeout <= 0 {
		return errors.ConfigInvalid("COMPUTE_TIMEOUT must be positive")
	}
	if config.Compute.MaxWorkers < 0 {
		return errors.ConfigInvalid("MAX_WORKERS cannot be negative")
	}
	if config.Limits.MaxGroups <= 0 || config.Limits.MaxCases <= 0 {
		return errors.ConfigInvalid("MAX_GROUPS and MAX_CASES must be positive")
	}
	switch config.Ledger.Driver {
	case "", "memory":
	case "postgres", "sqlite":
		if config.Ledger.URL == "" {
			return errors.ConfigInvalid("DATABASE_URL is required when LEDGER_DRIVER is set")
		}
	default:
		return errors.ConfigInvalid("LEDGER_DRIVER must be memory, postgres or sqlite")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("45s") or bare seconds ("300")
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
