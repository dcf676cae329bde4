// Package config loads service configuration from an optional YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the auth service and the poller.
type Config struct {
	Host     string
	Port     int
	LogLevel string

	// ShareDir is where the encrypted credential artifact and its key
	// live. Both the auth service and the poller read it.
	ShareDir string

	// AuthServiceURL is the remote credential source the poller probes
	// before falling back to ShareDir.
	AuthServiceURL string

	AuthTimeout    time.Duration
	NavTimeout     time.Duration
	UpdateInterval time.Duration

	Headless bool

	DashboardBaseURL string
	CSRFCookie       string
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8100,
		LogLevel:       "info",
		ShareDir:       "/share/parentsync",
		AuthTimeout:    300 * time.Second,
		NavTimeout:     30 * time.Second,
		UpdateInterval: 60 * time.Second,
		Headless:       false,
	}
}

// fileConfig is the YAML shape of the config file. Timeouts and
// intervals are whole seconds.
type fileConfig struct {
	Host             *string `yaml:"host"`
	Port             *int    `yaml:"port"`
	LogLevel         *string `yaml:"log_level"`
	ShareDir         *string `yaml:"share_dir"`
	AuthServiceURL   *string `yaml:"auth_service_url"`
	AuthTimeout      *int    `yaml:"auth_timeout"`
	NavTimeout       *int    `yaml:"nav_timeout"`
	UpdateInterval   *int    `yaml:"update_interval"`
	Headless         *bool   `yaml:"headless"`
	DashboardBaseURL *string `yaml:"dashboard_base_url"`
	CSRFCookie       *string `yaml:"csrf_cookie"`
}

func (c *Config) applyFile(raw fileConfig) {
	if raw.Host != nil {
		c.Host = *raw.Host
	}
	if raw.Port != nil {
		c.Port = *raw.Port
	}
	if raw.LogLevel != nil {
		c.LogLevel = *raw.LogLevel
	}
	if raw.ShareDir != nil {
		c.ShareDir = *raw.ShareDir
	}
	if raw.AuthServiceURL != nil {
		c.AuthServiceURL = *raw.AuthServiceURL
	}
	if raw.AuthTimeout != nil {
		c.AuthTimeout = time.Duration(*raw.AuthTimeout) * time.Second
	}
	if raw.NavTimeout != nil {
		c.NavTimeout = time.Duration(*raw.NavTimeout) * time.Second
	}
	if raw.UpdateInterval != nil {
		c.UpdateInterval = time.Duration(*raw.UpdateInterval) * time.Second
	}
	if raw.Headless != nil {
		c.Headless = *raw.Headless
	}
	if raw.DashboardBaseURL != nil {
		c.DashboardBaseURL = *raw.DashboardBaseURL
	}
	if raw.CSRFCookie != nil {
		c.CSRFCookie = *raw.CSRFCookie
	}
}

// Load reads configuration from path if it exists, then applies
// environment overrides. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else {
			var raw fileConfig
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
			cfg.applyFile(raw)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SHARE_DIR"); v != "" {
		c.ShareDir = v
	}
	if v := os.Getenv("AUTH_SERVICE_URL"); v != "" {
		c.AuthServiceURL = v
	}
	if v := os.Getenv("AUTH_TIMEOUT"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AUTH_TIMEOUT %q: %w", v, err)
		}
		c.AuthTimeout = time.Duration(seconds) * time.Second
	}
	if v := os.Getenv("UPDATE_INTERVAL"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid UPDATE_INTERVAL %q: %w", v, err)
		}
		c.UpdateInterval = time.Duration(seconds) * time.Second
	}
	if v := os.Getenv("HEADLESS"); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid HEADLESS %q: %w", v, err)
		}
		c.Headless = headless
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.AuthTimeout <= 0 {
		return fmt.Errorf("auth_timeout must be positive")
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update_interval must be positive")
	}
	return nil
}

// ListenAddr returns the host:port the auth service binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
