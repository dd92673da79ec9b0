package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/thermowatch/internal/config"
	"codeberg.org/mutker/thermowatch/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "thermowatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"
format = "json"

[server]
listen = "127.0.0.1:8080"

[retention]
window = "12h"
default_query = "1h"
sweep_interval = "30s"

[alarm]
temperature = 24.5
ambient = 27

[dashboard]
poll_interval = "10s"

[metrics]
enabled = false

[agent]
endpoint = "https://monitor.example.com/data"
interval = "15s"
device = 1

[agent.labels]
room = "server-room-1"
`)

	cfg, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)

	assert.Equal(t, config.LogLevelDebug, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 12*time.Hour, cfg.Retention.Window)
	assert.Equal(t, time.Hour, cfg.Retention.DefaultQuery)
	assert.Equal(t, 30*time.Second, cfg.Retention.SweepInterval)
	assert.InDelta(t, 24.5, cfg.Alarm.Temperature, 1e-9)
	assert.InDelta(t, 27, cfg.Alarm.Ambient, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Dashboard.PollInterval)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "https://monitor.example.com/data", cfg.Agent.Endpoint)
	assert.Equal(t, 15*time.Second, cfg.Agent.Interval)
	assert.Equal(t, 1, cfg.Agent.Device)
	assert.Equal(t, map[string]string{"room": "server-room-1"}, cfg.Agent.Labels)
	assert.Equal(t, path, cfg.File)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(config.WithSearchPaths(t.TempDir()))
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, config.DefaultListen, cfg.Server.Listen)
	assert.Equal(t, 3*time.Hour, cfg.Retention.Window)
	assert.Equal(t, 3*time.Hour, cfg.Retention.DefaultQuery)
	assert.InDelta(t, 25, cfg.Alarm.Temperature, 1e-9)
	assert.InDelta(t, 26, cfg.Alarm.Ambient, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Dashboard.PollInterval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Empty(t, cfg.File)
}

func TestLoadFromEnvConfigPath(t *testing.T) {
	path := writeConfig(t, `
[server]
listen = ":9000"
`)
	t.Setenv("THERMOWATCH_CONFIG", path)

	cfg, err := config.Load(config.WithSearchPaths(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Listen)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[retention]
window = "12h"
`)
	t.Setenv("THERMOWATCH_RETENTION_WINDOW", "6h")
	t.Setenv("THERMOWATCH_ALARM_TEMPERATURE", "30")

	cfg, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, cfg.Retention.Window)
	assert.InDelta(t, 30, cfg.Alarm.Temperature, 1e-9)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("THERMOWATCH_SERVER_LISTEN", ":5000")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	config.BindFlags(fs)
	config.BindServerFlags(fs)
	require.NoError(t, fs.Parse([]string{"--listen", ":6000", "--retention", "12h", "--log-level", "debug"}))

	cfg, err := config.Load(config.WithFlags(fs), config.WithSearchPaths(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Server.Listen)
	assert.Equal(t, 12*time.Hour, cfg.Retention.Window)
	assert.Equal(t, config.LogLevelDebug, cfg.Log.Level)
}

func TestUnsetFlagsKeepLowerSources(t *testing.T) {
	t.Setenv("THERMOWATCH_SERVER_LISTEN", ":5000")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	config.BindFlags(fs)
	config.BindServerFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := config.Load(config.WithFlags(fs), config.WithSearchPaths(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Server.Listen)
}

func TestConfigFlag(t *testing.T) {
	path := writeConfig(t, `
[dashboard]
title = "Lab"
`)

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	config.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))

	cfg, err := config.Load(config.WithFlags(fs))
	require.NoError(t, err)
	assert.Equal(t, "Lab", cfg.Dashboard.Title)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, `
This is not a valid TOML file
`)

	_, err := config.Load(config.WithConfigFile(path))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrReadConfig))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(config.WithConfigFile(filepath.Join(t.TempDir(), "missing.toml")))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrReadConfig))
}

func TestInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "invalid"
`)

	_, err := config.Load(config.WithConfigFile(path))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrInvalidLogLevel))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero retention", "[retention]\nwindow = \"0s\"\n"},
		{"negative default window", "[retention]\ndefault_query = \"-1h\"\n"},
		{"default window beyond retention", "[retention]\nwindow = \"1h\"\n"},
		{"fast poll", "[dashboard]\npoll_interval = \"100ms\"\n"},
		{"relative metrics path", "[metrics]\npath = \"metrics\"\n"},
		{"bad agent endpoint", "[agent]\nendpoint = \"ftp://example.com\"\n"},
		{"bad log format", "[log]\nformat = \"xml\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(config.WithConfigFile(writeConfig(t, tt.content)))
			assert.Error(t, err)
		})
	}
}

func TestDefaultWindowWithinRetention(t *testing.T) {
	_, err := config.Load(config.WithConfigFile(writeConfig(t, "[retention]\nwindow = \"2h\"\ndefault_query = \"3h\"\n")))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrInvalidConfig))

	cfg, err := config.Load(config.WithConfigFile(writeConfig(t, "[retention]\nwindow = \"2h\"\ndefault_query = \"2h\"\n")))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.Retention.DefaultQuery)
}

func TestLoggerOptions(t *testing.T) {
	cfg, err := config.Load(config.WithSearchPaths(t.TempDir()))
	require.NoError(t, err)

	opts, err := cfg.LoggerOptions()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultLogFormat, opts.Format)
}
