package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over values from
// config files. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults for settings that have sensible out-of-the-box values.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("queue.data_dir", ".")
	v.SetDefault("queue.history_limit", 100)
	v.SetDefault("queue.step_timeout_seconds", 120)
	// The API key default is empty so viper registers the key and
	// AutomaticEnv can fill it in; validation rejects the empty value.
	v.SetDefault("vision.gemini_api_key", "")
	v.SetDefault("vision.model_name", "gemini-2.0-flash")
	v.SetDefault("vision.embedding_model", "text-embedding-004")
	v.SetDefault("index.path", ".visor-index.db")

	// Optional config file in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// A missing config file is fine; environment variables suffice.
	}

	// Environment variables with a VISOR_ prefix override everything,
	// e.g. VISOR_SERVER_PORT or VISOR_VISION_GEMINI_API_KEY.
	v.SetEnvPrefix("VISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
