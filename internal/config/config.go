package config

// Config represents the main traceo configuration
type Config struct {
	// Server holds HTTP server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Providers holds per-provider overrides
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Loop holds sampling loop defaults
	Loop LoopConfig `json:"loop" mapstructure:"loop"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// ProvidersConfig overrides the built-in provider default model table
type ProvidersConfig struct {
	DefaultModels map[string]string `json:"default_models" mapstructure:"default_models"`
}

// LoopConfig holds defaults applied to sampling loop requests
type LoopConfig struct {
	// Sampler selects the loop implementation wired at startup. Only "dev"
	// ships in this repository; real loops are linked in by the embedder.
	Sampler string `json:"sampler" mapstructure:"sampler"`

	MaxTokens             int `json:"max_tokens" mapstructure:"max_tokens"`
	OnlyNMostRecentImages int `json:"only_n_most_recent_images" mapstructure:"only_n_most_recent_images"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			RateLimitPerMinute: 100,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Providers: ProvidersConfig{
			DefaultModels: map[string]string{},
		},
		Loop: LoopConfig{
			Sampler:   "dev",
			MaxTokens: 4096,
		},
	}
}
