package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Server.RateLimitPerMinute)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "dev", cfg.Loop.Sampler)
	assert.Equal(t, 4096, cfg.Loop.MaxTokens)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errStr string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitPerMinute = -1 }, "rate limit"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
		{"unknown sampler", func(c *Config) { c.Loop.Sampler = "prod" }, "sampler"},
		{"zero max tokens", func(c *Config) { c.Loop.MaxTokens = 0 }, "max tokens"},
		{"negative image retention", func(c *Config) { c.Loop.OnlyNMostRecentImages = -2 }, "image retention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorContains(t, err, tt.errStr)
		})
	}
}
