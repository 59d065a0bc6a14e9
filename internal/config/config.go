// Package config loads and validates the proxyname YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Default 128-bit identifiers for the bootstrap service and its proxy-name
// characteristic. Centrals must be configured with the same values.
const (
	DefaultServiceUUID       = "a7b2ffb6-2f54-4f3a-9c2e-0f52cbd1e6da"
	DefaultProxyNameCharUUID = "f1d0f897-4a2b-4b5c-8f3d-6e2a9b8c7d01"
)

// Config holds all application configuration.
type Config struct {
	Adapter           string `yaml:"adapter"`              // BLE controller ID, e.g. "hci0" (ignored on macOS)
	DeviceName        string `yaml:"device_name"`          // local name carried in the advertisement
	ServiceUUID       string `yaml:"service_uuid"`         // bootstrap service UUID
	ProxyNameCharUUID string `yaml:"proxy_name_char_uuid"` // write-only characteristic UUID
	LogLevel          string `yaml:"log_level"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "proxyname")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values. The device name
// defaults to the host name so scanners can tell peripherals apart.
func Default() *Config {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "proxyname"
	}
	return &Config{
		Adapter:           "hci0",
		DeviceName:        name,
		ServiceUUID:       DefaultServiceUUID,
		ProxyNameCharUUID: DefaultProxyNameCharUUID,
		LogLevel:          "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Adapter == "" {
		return fmt.Errorf("adapter must not be empty")
	}
	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}
	if _, err := uuid.Parse(c.ServiceUUID); err != nil {
		return fmt.Errorf("service_uuid %q is not a valid UUID: %w", c.ServiceUUID, err)
	}
	if _, err := uuid.Parse(c.ProxyNameCharUUID); err != nil {
		return fmt.Errorf("proxy_name_char_uuid %q is not a valid UUID: %w", c.ProxyNameCharUUID, err)
	}
	if c.ServiceUUID == c.ProxyNameCharUUID {
		return fmt.Errorf("service_uuid and proxy_name_char_uuid must differ")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	return nil
}

// SlogLevel maps the configured log level to a slog.Level. Unknown values
// fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WriteDefault writes a commented default config to the default path if no
// config file exists yet. It returns the written path, or "" if a file was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(DefaultConfigDir(), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	cfg := Default()
	content := fmt.Sprintf(`# proxyname configuration
# BLE controller to advertise on (Linux only).
adapter: %s
# Local name carried in the LE advertisement.
device_name: %s
# Bootstrap service and characteristic UUIDs; centrals must match.
service_uuid: %s
proxy_name_char_uuid: %s
# One of: debug, info, warn, error.
log_level: %s
`, cfg.Adapter, cfg.DeviceName, cfg.ServiceUUID, cfg.ProxyNameCharUUID, cfg.LogLevel)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}
