// Package config loads Flowrite's configuration record (spec.md §6)
// from an optional .env file and FLOWRITE_-prefixed environment
// variables, following the teacher's Load()/getEnv* pattern.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/tbrandenburg/flowrite/internal/logger"
)

// Config is the engine's configuration record.
type Config struct {
	StepTimeoutSeconds     int
	ActivityTimeoutSeconds int // carried for a future distributed wrapper, unused here (spec.md §9 OQ2)
	EvalTimeoutSeconds     int // carried for a future distributed wrapper, unused here (spec.md §9 OQ2)
	MaxRetries             int
	BackendEndpoint        string // opaque, used only by an external distributed wrapper

	MaxParallelism int // 0 = unbounded wave concurrency

	// StrictMissingNeeds toggles spec.md §9 Open Question #1: when
	// false (default) a missing job's needs.J.result defaults to
	// "success", matching the source; set true to treat it as absent.
	StrictMissingNeeds bool

	Logging logger.Config
}

// Load reads an optional .env file then builds Config from the process
// environment, applying defaults for anything unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StepTimeoutSeconds:     getEnvAsInt("FLOWRITE_STEP_TIMEOUT_SECONDS", 300),
		ActivityTimeoutSeconds: getEnvAsInt("FLOWRITE_ACTIVITY_TIMEOUT_SECONDS", 30),
		EvalTimeoutSeconds:     getEnvAsInt("FLOWRITE_EVAL_TIMEOUT_SECONDS", 10),
		MaxRetries:             getEnvAsInt("FLOWRITE_MAX_RETRIES", 3),
		BackendEndpoint:        getEnv("FLOWRITE_BACKEND_ENDPOINT", ""),
		MaxParallelism:         getEnvAsInt("FLOWRITE_MAX_PARALLELISM", 0),
		StrictMissingNeeds:     getEnvAsBool("FLOWRITE_STRICT_MISSING_NEEDS", false),
		Logging: logger.Config{
			Level:  getEnv("FLOWRITE_LOG_LEVEL", "info"),
			Format: getEnv("FLOWRITE_LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration record is internally consistent.
func (c *Config) Validate() error {
	if c.StepTimeoutSeconds < 1 {
		return fmt.Errorf("step timeout must be at least 1 second")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0")
	}
	if c.MaxParallelism < 0 {
		return fmt.Errorf("max parallelism must be >= 0")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}
	return nil
}

// EnvAsValue coerces a raw environment variable string following
// spec.md §6's rule: bool if "true"/"false", else integer, else float,
// else string. Exposed for callers that need the same coercion the
// Config loader applies (e.g. an external CLI resolving overrides).
func EnvAsValue(raw string) any {
	if raw == "true" || raw == "false" {
		return raw == "true"
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}
