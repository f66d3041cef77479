package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ClientConfig configures a device.
type ClientConfig struct {
	ServerURL      string        `yaml:"server_url"`
	DataDir        string        `yaml:"data_dir"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// SyncSchedule is a cron spec for background sync; empty disables it.
	SyncSchedule string `yaml:"sync_schedule"`
	WatchEvents  bool   `yaml:"watch_events"`
	LogLevel     string `yaml:"log_level"`
	// Metrics selects the metric exporter: none or stdout.
	Metrics         string        `yaml:"metrics"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultClientConfig returns the configuration used when no file exists.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL:       "http://localhost:8080",
		DataDir:         defaultDataDir(),
		RequestTimeout:  10 * time.Second,
		SyncSchedule:    "@every 30s",
		WatchEvents:     true,
		LogLevel:        "info",
		Metrics:         "none",
		MetricsInterval: time.Minute,
	}
}

// ClientConfigPath is where the device configuration lives by default.
func ClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "tasksync", "config.yaml")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "tasksync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tasksync"
	}
	return filepath.Join(home, ".local", "share", "tasksync")
}

// LoadClient reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ServerURL = getEnv("TASKSYNC_SERVER_URL", cfg.ServerURL)
	cfg.DataDir = getEnv("TASKSYNC_DATA_DIR", cfg.DataDir)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *ClientConfig) applyDefaults() {
	def := DefaultClientConfig()
	if c.ServerURL == "" {
		c.ServerURL = def.ServerURL
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Metrics == "" {
		c.Metrics = def.Metrics
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = def.MetricsInterval
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")
}

func (c ClientConfig) Validate() error {
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server_url %q: must be an http or https URL", c.ServerURL)
	}
	if c.SyncSchedule != "" {
		if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
			return fmt.Errorf("sync_schedule %q: %w", c.SyncSchedule, err)
		}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.Metrics {
	case "none", "stdout":
	default:
		return fmt.Errorf("metrics %q: must be none or stdout", c.Metrics)
	}
	return nil
}

// StorePath is the location of the local task database.
func (c ClientConfig) StorePath() string {
	return filepath.Join(c.DataDir, "tasks.db")
}

// EventsURL is the websocket address of the server's change feed.
func (c ClientConfig) EventsURL() string {
	switch {
	case strings.HasPrefix(c.ServerURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.ServerURL, "https://") + "/api/events"
	default:
		return "ws://" + strings.TrimPrefix(c.ServerURL, "http://") + "/api/events"
	}
}
