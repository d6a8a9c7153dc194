package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reconnect strategies accepted by ReconnectConfig.Strategy
const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

// Environment variables that override file values
const (
	EnvConfigPath = "MAILSYNC_CONFIG"
	EnvAPIURL     = "MAILSYNC_API_URL"
	EnvPushURL    = "MAILSYNC_PUSH_URL"
	EnvToken      = "MAILSYNC_TOKEN"
	EnvAccount    = "MAILSYNC_ACCOUNT"
	EnvPageSize   = "MAILSYNC_PAGE_SIZE"
)

// Config holds all configuration for the mail sync engine
type Config struct {
	// APIBaseURL is the REST root of the mail service, e.g. https://mail.example.com/api
	APIBaseURL string `yaml:"api_base_url"`
	// PushURL is the websocket endpoint; empty disables the push channel
	PushURL string `yaml:"push_url"`

	// Account identifies the mailbox in local snapshots and logs
	Account string `yaml:"account"`

	// TokenFile holds the cached session token (oauth2.Token JSON)
	TokenFile string `yaml:"token_file"`
	// Token is only ever set from the environment
	Token string `yaml:"-"`

	PageSize       int           `yaml:"page_size"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Log       LogConfig       `yaml:"log"`
}

// ReconnectConfig controls how the push channel retries after a drop
type ReconnectConfig struct {
	Strategy     string        `yaml:"strategy"` // fixed, exponential
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Factor       float64       `yaml:"factor"`
}

// SnapshotConfig controls local warm-start persistence
type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig controls the log destination and level
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:     "http://localhost:8000/api",
		PushURL:        "ws://localhost:8000/ws",
		Account:        "default",
		TokenFile:      DefaultTokenPath(),
		PageSize:       50,
		PollInterval:   60 * time.Second,
		RequestTimeout: 30 * time.Second,
		Reconnect:      DefaultReconnectConfig(),
		Snapshot: SnapshotConfig{
			Enabled: true,
			Path:    DefaultSnapshotPath(),
		},
		Log: LogConfig{
			File:  DefaultLogPath(),
			Level: "info",
		},
	}
}

// DefaultReconnectConfig returns the fixed 3 second retry used by the web client
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Strategy:     StrategyFixed,
		InitialDelay: 3 * time.Second,
		MaxDelay:     60 * time.Second,
		Factor:       2,
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
// A missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(expandPath(configPath))
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.applyDefaults()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIURL); ok && strings.TrimSpace(v) != "" {
		c.APIBaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPushURL); ok {
		c.PushURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvToken); ok && strings.TrimSpace(v) != "" {
		c.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvAccount); ok && strings.TrimSpace(v) != "" {
		c.Account = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPageSize); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.PageSize = n
		}
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Reconnect.Strategy == "" {
		c.Reconnect.Strategy = def.Reconnect.Strategy
	}
	if c.Reconnect.Factor == 0 {
		c.Reconnect.Factor = def.Reconnect.Factor
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = def.Snapshot.Path
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	c.TokenFile = expandPath(c.TokenFile)
	c.Snapshot.Path = expandPath(c.Snapshot.Path)
	c.Log.File = expandPath(c.Log.File)
}

// Validate reports the first invalid field
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api_base_url is required")
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Host == "" {
		return fmt.Errorf("invalid api_base_url %q", c.APIBaseURL)
	}
	if c.PushURL != "" {
		u, err := url.Parse(c.PushURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("push_url must be a ws:// or wss:// URL")
		}
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	switch c.Reconnect.Strategy {
	case StrategyFixed:
	case StrategyExponential:
		if c.Reconnect.Factor < 1 {
			return fmt.Errorf("reconnect.factor must be >= 1")
		}
		if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
			return fmt.Errorf("reconnect.max_delay must be >= initial_delay")
		}
	default:
		return fmt.Errorf("unknown reconnect strategy %q", c.Reconnect.Strategy)
	}
	if c.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("reconnect.initial_delay must be positive")
	}
	if c.Snapshot.Enabled && strings.TrimSpace(c.Snapshot.Path) == "" {
		return fmt.Errorf("snapshot.path is required when snapshots are enabled")
	}
	return nil
}

// SaveConfig writes the configuration as YAML
func (c *Config) SaveConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ConfigDir returns ~/.config/mailsync
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mailsync")
}

// DefaultConfigPath returns the default config file path
func DefaultConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultTokenPath returns the default cached session token path
func DefaultTokenPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "token.json")
}

// DefaultSnapshotPath returns the default SQLite snapshot path
func DefaultSnapshotPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "snapshots.sqlite3")
}

// DefaultLogPath returns the default log file path
func DefaultLogPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "mailsync.log")
}

func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
