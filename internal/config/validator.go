package config

import "fmt"

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSamplers = map[string]bool{
	"dev": true,
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if !validSamplers[c.Loop.Sampler] {
		return fmt.Errorf("unknown sampler: %s", c.Loop.Sampler)
	}
	if c.Loop.MaxTokens <= 0 {
		return fmt.Errorf("loop max tokens must be positive, got %d", c.Loop.MaxTokens)
	}
	if c.Loop.OnlyNMostRecentImages < 0 {
		return fmt.Errorf("image retention count cannot be negative")
	}

	return nil
}
