package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "traceo.log")

	l, err := New(Config{
		Level: "debug",
		File:  logFile,
	})
	require.NoError(t, err)
	defer l.Close()

	zl := l.GetZerolog()
	zl.Info().Str("component", "test").Msg("file output works")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file output works")
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "traceo.log")

	l, err := New(Config{Level: "chatty", File: logFile})
	require.NoError(t, err)
	defer l.Close()

	zl := l.GetZerolog()
	zl.Debug().Msg("should be suppressed")
	zl.Info().Msg("should be written")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be suppressed")
	assert.Contains(t, string(data), "should be written")
}

func TestNew_Redaction(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "traceo.log")

	l, err := New(Config{Level: "info", File: logFile, Redaction: true})
	require.NoError(t, err)
	defer l.Close()

	zl := l.GetZerolog()
	zl.Info().
		Str("key", "sk-ant-REDACTED").
		Msg("credential in field")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-ant-api03")
	assert.Contains(t, string(data), "[REDACTED]")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
}
