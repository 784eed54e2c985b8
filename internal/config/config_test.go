package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	for _, k := range []string{
		"FLOWRITE_STEP_TIMEOUT_SECONDS", "FLOWRITE_ACTIVITY_TIMEOUT_SECONDS",
		"FLOWRITE_EVAL_TIMEOUT_SECONDS", "FLOWRITE_MAX_RETRIES",
		"FLOWRITE_BACKEND_ENDPOINT", "FLOWRITE_MAX_PARALLELISM",
		"FLOWRITE_STRICT_MISSING_NEEDS", "FLOWRITE_LOG_LEVEL", "FLOWRITE_LOG_FORMAT",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.StepTimeoutSeconds)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 0, cfg.MaxParallelism)
	assert.False(t, cfg.StrictMissingNeeds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv()
	os.Setenv("FLOWRITE_STEP_TIMEOUT_SECONDS", "60")
	os.Setenv("FLOWRITE_MAX_RETRIES", "5")
	os.Setenv("FLOWRITE_STRICT_MISSING_NEEDS", "true")
	os.Setenv("FLOWRITE_LOG_LEVEL", "debug")
	defer clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.StepTimeoutSeconds)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.StrictMissingNeeds)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	clearEnv()
	os.Setenv("FLOWRITE_LOG_LEVEL", "nonsense")
	defer clearEnv()

	_, err := Load()
	require.Error(t, err)
}

func TestEnvAsValue_Coercion(t *testing.T) {
	assert.Equal(t, true, EnvAsValue("true"))
	assert.Equal(t, int64(42), EnvAsValue("42"))
	assert.Equal(t, 3.14, EnvAsValue("3.14"))
	assert.Equal(t, "hello", EnvAsValue("hello"))
}
