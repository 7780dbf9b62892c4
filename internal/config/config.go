package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string         `toml:"default_session"`
	Server         ServerConfig   `toml:"server"`
	Sync           SyncConfig     `toml:"sync"`
	Settings       SettingsConfig `toml:"settings"`
}

// ServerConfig locates and authenticates against the chat service.
type ServerConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
	UserID  string `toml:"user_id"`
}

// SyncConfig tunes the delta long-poll.
type SyncConfig struct {
	PollInterval      Duration `toml:"poll_interval"`
	ShortPollInterval Duration `toml:"short_poll_interval"`
	RetryBaseDelay    Duration `toml:"retry_base_delay"`
	RetryMaxDelay     Duration `toml:"retry_max_delay"`
}

// SettingsConfig tunes settings push scheduling.
type SettingsConfig struct {
	Debounce         Duration `toml:"debounce"`
	BackoffBase      Duration `toml:"backoff_base"`
	BackoffMax       Duration `toml:"backoff_max"`
	PeriodicInterval Duration `toml:"periodic_interval"`
}

// Duration is a time.Duration written as a string such as "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default values used when a field is unset.
var (
	DefaultPollInterval      = 2 * time.Second
	DefaultShortPollInterval = 500 * time.Millisecond
	DefaultRetryBaseDelay    = time.Second
	DefaultRetryMaxDelay     = 30 * time.Second
	DefaultDebounce          = 500 * time.Millisecond
	DefaultBackoffBase       = 5 * time.Second
	DefaultBackoffMax        = 5 * time.Minute
	DefaultPeriodicInterval  = 15 * time.Minute
)

// WithDefaults returns a copy with every unset duration filled in.
func (c Config) WithDefaults() Config {
	fill := func(d *Duration, v time.Duration) {
		if d.Duration <= 0 {
			d.Duration = v
		}
	}
	fill(&c.Sync.PollInterval, DefaultPollInterval)
	fill(&c.Sync.ShortPollInterval, DefaultShortPollInterval)
	fill(&c.Sync.RetryBaseDelay, DefaultRetryBaseDelay)
	fill(&c.Sync.RetryMaxDelay, DefaultRetryMaxDelay)
	fill(&c.Settings.Debounce, DefaultDebounce)
	fill(&c.Settings.BackoffBase, DefaultBackoffBase)
	fill(&c.Settings.BackoffMax, DefaultBackoffMax)
	fill(&c.Settings.PeriodicInterval, DefaultPeriodicInterval)
	return c
}

// Environment variables that override the [server] section.
const (
	EnvServerURL = "CHATSYNC_SERVER_URL"
	EnvToken     = "CHATSYNC_TOKEN"
	EnvUserID    = "CHATSYNC_USER_ID"
)

// ApplyEnv overrides server credentials from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvServerURL); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv(EnvUserID); v != "" {
		c.Server.UserID = v
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
