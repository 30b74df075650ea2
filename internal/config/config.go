package config

import (
	"os"
	"strconv"
	"time"

	"godisc/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Search   SearchConfig
	Bootstrap BootstrapConfig
	Verify   VerifyConfig
	Database DatabaseConfig
	Server   ServerConfig
}

// SearchConfig holds optimizer loop settings
type SearchConfig struct {
	Rounds         int
	Patience       int
	Tolerance      float64
	Eta            float64 // dual ascent step size; not auto-tuned
	EWMADecay      float64 // decay for the running null rejection rate
	PopulationSize int
	StepSize       float64
	BaseSeed       int64
}

// BootstrapConfig holds calibration settings
type BootstrapConfig struct {
	Alpha      float64
	Epsilon    float64 // slack absorbing finite-B estimation noise
	Resamples  int
	SampleSize int
	Workers    int64
}

// VerifyConfig holds verification gate settings
type VerifyConfig struct {
	BackendURL   string
	Timeout      time.Duration
	RetryCeiling int
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL     string
	Enabled bool
}

// ServerConfig holds status API settings
type ServerConfig struct {
	Port string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Search: SearchConfig{
			Rounds:         getEnvIntOrDefault("SEARCH_ROUNDS", 200),
			Patience:       getEnvIntOrDefault("SEARCH_PATIENCE", 20),
			Tolerance:      getEnvFloatOrDefault("SEARCH_TOLERANCE", 1e-3),
			Eta:            getEnvFloatOrDefault("DUAL_ETA", 0.05),
			EWMADecay:      getEnvFloatOrDefault("NULL_RATE_DECAY", 0.1),
			PopulationSize: getEnvIntOrDefault("POPULATION_SIZE", 16),
			StepSize:       getEnvFloatOrDefault("STEP_SIZE", 0.1),
			BaseSeed:       int64(getEnvIntOrDefault("BASE_SEED", 42)),
		},
		Bootstrap: BootstrapConfig{
			Alpha:      getEnvFloatOrDefault("ALPHA", 0.05),
			Epsilon:    getEnvFloatOrDefault("EPSILON", 0.01),
			Resamples:  getEnvIntOrDefault("RESAMPLES", 2000),
			SampleSize: getEnvIntOrDefault("SAMPLE_SIZE", 100),
			Workers:    int64(getEnvIntOrDefault("BOOTSTRAP_WORKERS", 4)),
		},
		Verify: VerifyConfig{
			BackendURL:   os.Getenv("PROVER_URL"),
			Timeout:      getEnvDurationOrDefault("VERIFY_TIMEOUT", 5*time.Minute),
			RetryCeiling: getEnvIntOrDefault("VERIFY_RETRY_CEILING", 3),
		},
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			Enabled: os.Getenv("DATABASE_URL") != "",
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Bootstrap.Alpha <= 0 || config.Bootstrap.Alpha >= 1 {
		return errors.ConfigInvalid("ALPHA must be in (0, 1)")
	}
	// 200 is the practical floor for percentile-bootstrap stability
	if config.Bootstrap.Resamples < 200 {
		return errors.ConfigInvalid("RESAMPLES must be at least 200")
	}
	if config.Bootstrap.SampleSize < 2 {
		return errors.ConfigInvalid("SAMPLE_SIZE must be at least 2")
	}
	if config.Search.Eta <= 0 {
		return errors.ConfigInvalid("DUAL_ETA must be positive")
	}
	if config.Search.EWMADecay <= 0 || config.Search.EWMADecay > 1 {
		return errors.ConfigInvalid("NULL_RATE_DECAY must be in (0, 1]")
	}
	if config.Verify.RetryCeiling < 1 {
		return errors.ConfigInvalid("VERIFY_RETRY_CEILING must be at least 1")
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

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
