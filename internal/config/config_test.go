package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "release", cfg.Server.Mode)

	assert.Equal(t, "./data/bms.db", cfg.Database.Path)
	assert.Equal(t, "./migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, 10, cfg.Database.MaxConnections)

	assert.Equal(t, 5*time.Minute, cfg.Engine.EvaluationInterval)
	assert.Equal(t, 10, cfg.Engine.MaxConcurrentEvals)
	assert.Equal(t, 24*time.Hour, cfg.Engine.HistoryWindow)

	assert.Equal(t, 15*time.Second, cfg.Notifications.DispatchTimeout)
	assert.Equal(t, 3, cfg.Notifications.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Notifications.RetryInterval)
	assert.Equal(t, 587, cfg.Notifications.SMTP.Port)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BMS_SERVER_PORT", "9090")
	t.Setenv("BMS_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
