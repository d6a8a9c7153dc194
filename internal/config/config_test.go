package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, StrategyFixed, cfg.Reconnect.Strategy)
	assert.Equal(t, 3*time.Second, cfg.Reconnect.InitialDelay)
	assert.True(t, cfg.Snapshot.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path != "" {
		assert.Contains(t, path, ".config")
		assert.Contains(t, path, "mailsync")
		assert.Contains(t, path, "config.yaml")
	}
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")

	assert.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, DefaultConfig().PollInterval, cfg.PollInterval)
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/config.yaml")

	assert.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvPushURL, "wss://mail.example.com/ws")
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api_base_url: https://mail.example.com/api
page_size: 25
poll_interval: 2m
reconnect:
  strategy: exponential
  initial_delay: 1s
  max_delay: 30s
snapshot:
  enabled: false
log:
  level: debug
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	cfg, err := LoadConfig(configFile)
	require.NoError(t, err)
	assert.Equal(t, "https://mail.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, "wss://mail.example.com/ws", cfg.PushURL)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	assert.Equal(t, StrategyExponential, cfg.Reconnect.Strategy)
	assert.Equal(t, time.Second, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 2.0, cfg.Reconnect.Factor)
	assert.False(t, cfg.Snapshot.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("page_size: [nope"), 0644))

	cfg, err := LoadConfig(configFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAPIURL:   " https://override/api ",
		EnvToken:    "tok",
		EnvAccount:  "me@example.com",
		EnvPageSize: "10",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, "https://override/api", cfg.APIBaseURL)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, "me@example.com", cfg.Account)
	assert.Equal(t, 10, cfg.PageSize)

	untouched := DefaultConfig()
	untouched.ApplyEnv(noEnv)
	assert.Equal(t, DefaultConfig().APIBaseURL, untouched.APIBaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty api url", func(c *Config) { c.APIBaseURL = "" }},
		{"api url without host", func(c *Config) { c.APIBaseURL = "/api" }},
		{"http push url", func(c *Config) { c.PushURL = "http://host/ws" }},
		{"zero page size", func(c *Config) { c.PageSize = 0 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"unknown strategy", func(c *Config) { c.Reconnect.Strategy = "linear" }},
		{"zero delay", func(c *Config) { c.Reconnect.InitialDelay = 0 }},
		{"factor below one", func(c *Config) {
			c.Reconnect.Strategy = StrategyExponential
			c.Reconnect.Factor = 0.5
		}},
		{"max below initial", func(c *Config) {
			c.Reconnect.Strategy = StrategyExponential
			c.Reconnect.MaxDelay = time.Second
		}},
		{"snapshot without path", func(c *Config) { c.Snapshot.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())

	cfg := DefaultConfig()
	cfg.PushURL = ""
	assert.NoError(t, cfg.Validate(), "push channel is optional")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "nested", "deep", "config.yaml")

	cfg := DefaultConfig()
	cfg.APIBaseURL = "https://saved.example.com/api"
	cfg.PollInterval = 90 * time.Second
	cfg.Token = "never-written"
	require.NoError(t, cfg.SaveConfig(configFile))
	assert.FileExists(t, configFile)

	data, err := os.ReadFile(configFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never-written")

	loaded, err := LoadConfig(configFile)
	require.NoError(t, err)
	assert.Equal(t, "https://saved.example.com/api", loaded.APIBaseURL)
	assert.Equal(t, 90*time.Second, loaded.PollInterval)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, "x", "y"), expandPath("~/x/y"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
}
