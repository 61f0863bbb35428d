package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/ukydev/fleet-registry/internal/compliance"
)

// ClientConfig is the fleetwatch configuration file.
type ClientConfig struct {
	APIURL    string            `toml:"api_url"`
	WSURL     string            `toml:"ws_url"`
	Token     string            `toml:"token,omitempty"`
	AlertDays int               `toml:"alert_days"`
	Presets   map[string]Preset `toml:"presets,omitempty"`
}

// Preset is a saved list view: filter criteria plus sort order.
type Preset struct {
	Criteria compliance.Criteria `toml:"criteria"`
	Sort     compliance.SortSpec `toml:"sort"`
}

// DefaultClientConfig points at a local fleetd.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		APIURL:    "http://localhost:8080",
		WSURL:     "ws://localhost:8080/ws",
		AlertDays: compliance.DefaultAlertDays,
	}
}

// DefaultClientConfigPath returns $XDG_CONFIG_HOME/fleetwatch/config.toml or
// the equivalent under the user's home directory.
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "fleetwatch", "config.toml")
}

// ReadClientConfig decodes a ClientConfig from r, on top of the defaults.
func ReadClientConfig(r io.Reader) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.AlertDays <= 0 {
		cfg.AlertDays = compliance.DefaultAlertDays
	}
	return cfg, nil
}

// WriteClientConfig encodes cfg to w.
func WriteClientConfig(w io.Writer, cfg *ClientConfig) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// LoadClientConfig reads the file at path. A missing file yields the defaults.
func LoadClientConfig(path string) (*ClientConfig, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultClientConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := ReadClientConfig(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// SaveClientConfig writes cfg to path, creating parent directories. The file
// holds a bearer token so it is private to the user.
func SaveClientConfig(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := WriteClientConfig(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Preset returns the named preset.
func (c *ClientConfig) Preset(name string) (Preset, bool) {
	p, ok := c.Presets[name]
	return p, ok
}
