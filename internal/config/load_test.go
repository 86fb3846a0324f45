package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv sets up environment variables for testing
func setupEnv(t *testing.T, envVars map[string]string) func() {
	// Save current environment values
	originalValues := make(map[string]string)
	for name := range envVars {
		originalValues[name] = os.Getenv(name)
	}

	// Set new environment variables
	for name, value := range envVars {
		err := os.Setenv(name, value)
		require.NoError(t, err, "Failed to set environment variable %s", name)
	}

	// Return cleanup function
	return func() {
		// Restore original environment
		for name, value := range originalValues {
			if value == "" {
				os.Unsetenv(name)
			} else {
				os.Setenv(name, value)
			}
		}
	}
}

// TestLoadDefaults verifies that the Load function sets the expected default values
// when no environment variables are set.
func TestLoadDefaults(t *testing.T) {
	cleanup := setupEnv(t, map[string]string{
		// Set required fields without defaults
		"VISOR_VISION_GEMINI_API_KEY": "test-api-key",
		// Explicitly unset the ones we want to test defaults for
		"VISOR_SERVER_PORT":      "",
		"VISOR_SERVER_LOG_LEVEL": "",
	})
	defer cleanup()

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg, "Load() should return a non-nil config")
	assert.Equal(t, 8080, cfg.Server.Port, "Default server port should be 8080")
	assert.Equal(t, "info", cfg.Server.LogLevel, "Default log level should be 'info'")
	assert.Equal(t, 100, cfg.Queue.HistoryLimit, "Default history limit should be 100")
	assert.Equal(t, 120, cfg.Queue.StepTimeoutSeconds, "Default step timeout should be 120 seconds")
	assert.Equal(t, "gemini-2.0-flash", cfg.Vision.ModelName)
}

// TestLoadFromEnv verifies that the Load function correctly reads values from environment variables.
func TestLoadFromEnv(t *testing.T) {
	cleanup := setupEnv(t, map[string]string{
		"VISOR_SERVER_PORT":                "9090",
		"VISOR_SERVER_LOG_LEVEL":           "debug",
		"VISOR_QUEUE_DATA_DIR":             "/var/lib/visor",
		"VISOR_QUEUE_HISTORY_LIMIT":        "25",
		"VISOR_QUEUE_STEP_TIMEOUT_SECONDS": "30",
		"VISOR_VISION_GEMINI_API_KEY":      "test-api-key",
		"VISOR_VISION_MODEL_NAME":          "gemini-2.0-pro",
		"VISOR_INDEX_PATH":                 "/var/lib/visor/index.db",
	})
	defer cleanup()

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with valid environment variables")
	require.NotNil(t, cfg, "Load() should return a non-nil config")
	assert.Equal(t, 9090, cfg.Server.Port, "Server port should be loaded from environment variables")
	assert.Equal(t, "debug", cfg.Server.LogLevel, "Log level should be loaded from environment variables")
	assert.Equal(t, "/var/lib/visor", cfg.Queue.DataDir)
	assert.Equal(t, 25, cfg.Queue.HistoryLimit)
	assert.Equal(t, 30, cfg.Queue.StepTimeoutSeconds)
	assert.Equal(t, "test-api-key", cfg.Vision.GeminiAPIKey)
	assert.Equal(t, "gemini-2.0-pro", cfg.Vision.ModelName)
	assert.Equal(t, "/var/lib/visor/index.db", cfg.Index.Path)
}

// TestLoadValidationErrors verifies that the Load function correctly validates the configuration.
func TestLoadValidationErrors(t *testing.T) {
	testCases := []struct {
		name           string
		envVars        map[string]string
		errorSubstring string
	}{
		{
			name: "Missing API key",
			envVars: map[string]string{
				"VISOR_SERVER_PORT":           "9090",
				"VISOR_SERVER_LOG_LEVEL":      "debug",
				"VISOR_VISION_GEMINI_API_KEY": "",
			},
			errorSubstring: "validation failed",
		},
		{
			name: "Invalid port number",
			envVars: map[string]string{
				"VISOR_SERVER_PORT":           "999999", // Port out of range
				"VISOR_VISION_GEMINI_API_KEY": "test-api-key",
			},
			errorSubstring: "validation failed",
		},
		{
			name: "Invalid log level",
			envVars: map[string]string{
				"VISOR_SERVER_LOG_LEVEL":      "verbose", // Not a known level
				"VISOR_VISION_GEMINI_API_KEY": "test-api-key",
			},
			errorSubstring: "validation failed",
		},
		{
			name: "Zero step timeout",
			envVars: map[string]string{
				"VISOR_QUEUE_STEP_TIMEOUT_SECONDS": "0",
				"VISOR_VISION_GEMINI_API_KEY":      "test-api-key",
			},
			errorSubstring: "validation failed",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cleanup := setupEnv(t, tc.envVars)
			defer cleanup()

			cfg, err := Load()

			assert.Error(t, err, "Load() should return an error with invalid configuration")
			if err != nil {
				assert.Contains(t, err.Error(), tc.errorSubstring, "Error message should contain expected substring")
			}
			assert.Nil(t, cfg, "Config should be nil when an error occurs")
		})
	}
}
