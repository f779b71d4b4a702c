// Package config loads the local configuration from ~/.keysync.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Env overrides applied after the file is parsed.
const (
	EnvRemoteURL = "KEYSYNC_REMOTE_URL"
	EnvUserID    = "KEYSYNC_USER_ID"
)

// LocalConfig holds the daemon and client settings.
type LocalConfig struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	Remote  RemoteConfig  `yaml:"remote"`
	Sync    SyncConfig    `yaml:"sync"`
	Storage StorageConfig `yaml:"storage"`
	Events  EventsConfig  `yaml:"events"`
}

// DaemonConfig holds the local HTTP server settings.
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
}

// RemoteConfig holds the results endpoint settings.
type RemoteConfig struct {
	URL            string `yaml:"url"`
	UserID         string `yaml:"user_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SyncConfig controls the background pending-queue replay.
type SyncConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// StorageConfig selects the local slot backend.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // file or sqlite
	MaxBytes int    `yaml:"max_bytes"` // 0 means uncapped
}

// EventsConfig controls the optional result-event producer.
type EventsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BrokerURL string `yaml:"broker_url"`
}

// Timeout returns the per-attempt remote timeout as a duration.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// Interval returns the sync interval as a duration.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Addr returns the daemon listen address.
func (d DaemonConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Bind, d.Port)
}

// KeysyncDir returns the path to ~/.keysync.
func KeysyncDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".keysync"), nil
}

// EnsureKeysyncDir creates ~/.keysync and its subdirectories.
func EnsureKeysyncDir() (string, error) {
	dir, err := KeysyncDir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "data"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}
	return dir, nil
}

// DefaultLocalConfig returns the defaults used when no file exists.
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7521,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Remote: RemoteConfig{
			URL:            "http://localhost:4000",
			UserID:         "default",
			TimeoutSeconds: 5,
		},
		Sync: SyncConfig{
			IntervalSeconds: 60,
		},
		Storage: StorageConfig{
			Backend: "file",
		},
		Events: EventsConfig{
			Enabled: false,
		},
	}
}

// LoadLocalConfig reads ~/.keysync/config.yaml, falling back to defaults
// when the file is absent, and applies env overrides last.
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := KeysyncDir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(filepath.Join(dir, "config.yaml"))
}

// LoadLocalConfigFrom reads the config from an explicit path.
func LoadLocalConfigFrom(path string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults apply.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *LocalConfig) {
	if url := os.Getenv(EnvRemoteURL); url != "" {
		cfg.Remote.URL = url
	}
	if user := os.Getenv(EnvUserID); user != "" {
		cfg.Remote.UserID = user
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c *LocalConfig) Validate() error {
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("invalid daemon port %d", c.Daemon.Port)
	}
	if c.Remote.URL == "" {
		return fmt.Errorf("remote url is required")
	}
	if c.Remote.UserID == "" {
		return fmt.Errorf("remote user id is required")
	}
	if c.Remote.TimeoutSeconds <= 0 {
		return fmt.Errorf("remote timeout must be positive, got %d", c.Remote.TimeoutSeconds)
	}
	if c.Sync.IntervalSeconds <= 0 {
		return fmt.Errorf("sync interval must be positive, got %d", c.Sync.IntervalSeconds)
	}
	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Events.Enabled && c.Events.BrokerURL == "" {
		return fmt.Errorf("events enabled without a broker url")
	}
	return nil
}

// SaveLocalConfig writes the config to ~/.keysync/config.yaml.
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureKeysyncDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
