package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoader_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traceo.json")
	body := `{
		"server": {"port": 9100, "rate_limit_per_minute": 10},
		"providers": {"default_models": {"anthropic": "claude-3-7-sonnet-latest"}},
		"loop": {"max_tokens": 2048},
		"data_dir": "` + dir + `"
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.RateLimitPerMinute)
	assert.Equal(t, "claude-3-7-sonnet-latest", cfg.Providers.DefaultModels["anthropic"])
	assert.Equal(t, 2048, cfg.Loop.MaxTokens)
	// Defaults survive for fields the file does not set.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, filepath.Join(dir, "traceo.log"), cfg.Logging.File)
}

func TestLoader_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traceo.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}
