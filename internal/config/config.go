// Package config provides YAML configuration for the server and the
// device agent, with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds server-side settings.
type ServerConfig struct {
	ListenAddr      string  `yaml:"listen_addr"`
	DataDir         string  `yaml:"data_dir"`
	ProximityMeters float64 `yaml:"proximity_meters"`
	MinVisitMinutes int     `yaml:"min_visit_minutes"`
}

// DeviceConfig holds device-agent settings.
type DeviceConfig struct {
	ServerURL             string `yaml:"server_url"`
	DataDir               string `yaml:"data_dir"`
	StatusListenAddr      string `yaml:"status_listen_addr"`
	QueueCapacity         int    `yaml:"queue_capacity"`
	MaxAttempts           int    `yaml:"max_attempts"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	ProbeIntervalSeconds  int    `yaml:"probe_interval_seconds"`
}

// Config is the top-level configuration document.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Device DeviceConfig `yaml:"device"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8090",
			DataDir:         "./data",
			ProximityMeters: 100,
			MinVisitMinutes: 5,
		},
		Device: DeviceConfig{
			ServerURL:             "http://localhost:8090",
			DataDir:               "./data/device",
			StatusListenAddr:      "localhost:8091",
			QueueCapacity:         200,
			MaxAttempts:           5,
			RequestTimeoutSeconds: 30,
			ProbeIntervalSeconds:  15,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns defaults with env overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides selected fields from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENSALES_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("OPENSALES_DATA_DIR"); v != "" {
		c.Server.DataDir = v
	}
	if v := os.Getenv("OPENSALES_SERVER_URL"); v != "" {
		c.Device.ServerURL = v
	}
	if v := os.Getenv("OPENSALES_DEVICE_DATA_DIR"); v != "" {
		c.Device.DataDir = v
	}
	if v := os.Getenv("OPENSALES_PROXIMITY_METERS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Server.ProximityMeters = f
		}
	}
}

func (c *Config) validate() error {
	if c.Server.ProximityMeters <= 0 {
		return fmt.Errorf("proximity_meters must be positive, got %v", c.Server.ProximityMeters)
	}
	if c.Server.MinVisitMinutes < 0 {
		return fmt.Errorf("min_visit_minutes must not be negative, got %d", c.Server.MinVisitMinutes)
	}
	if c.Device.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.Device.QueueCapacity)
	}
	if c.Device.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.Device.MaxAttempts)
	}
	return nil
}

// MinVisitDuration returns the minimum visit duration as a time.Duration.
func (c *ServerConfig) MinVisitDuration() time.Duration {
	return time.Duration(c.MinVisitMinutes) * time.Minute
}

// RequestTimeout returns the per-delivery timeout as a time.Duration.
func (c *DeviceConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ProbeInterval returns the reachability probe interval as a time.Duration.
func (c *DeviceConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}
