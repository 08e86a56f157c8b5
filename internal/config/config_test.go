package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ops-copilot.db", cfg.Store.Path)
	assert.Equal(t, 3.0, cfg.Detect.Threshold)
	assert.Equal(t, 14, cfg.Detect.WindowDays)
	assert.Equal(t, 5, cfg.Explain.TopN)
	assert.Equal(t, 7, cfg.Webhook.TimeoutSecs)
	assert.Equal(t, 5.0, cfg.Webhook.RatePerSec)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OPSCOPILOT_STORE_DRIVER", "postgres")
	t.Setenv("OPSCOPILOT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
