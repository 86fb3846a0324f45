package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Queue  QueueConfig  `mapstructure:"queue"  validate:"required"`
	Vision VisionConfig `mapstructure:"vision" validate:"required"`
	Index  IndexConfig  `mapstructure:"index"  validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// QueueConfig contains the processing queue settings.
type QueueConfig struct {
	// DataDir is where the queue snapshot file lives.
	DataDir string `mapstructure:"data_dir" validate:"required"`

	// HistoryLimit bounds how many terminal tasks are retained for
	// status reporting before the oldest are dropped.
	HistoryLimit int `mapstructure:"history_limit" validate:"required,gt=0"`

	// StepTimeoutSeconds bounds each individual vision backend call.
	StepTimeoutSeconds int `mapstructure:"step_timeout_seconds" validate:"required,gt=0"`
}

// VisionConfig contains the vision backend integration settings.
type VisionConfig struct {
	GeminiAPIKey   string `mapstructure:"gemini_api_key"  validate:"required"`
	ModelName      string `mapstructure:"model_name"      validate:"required"`
	EmbeddingModel string `mapstructure:"embedding_model" validate:"required"`
}

// IndexConfig contains the vector index settings.
type IndexConfig struct {
	// Path is the SQLite database file backing the index.
	Path string `mapstructure:"path" validate:"required"`
}
