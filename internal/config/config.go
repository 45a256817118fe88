// Package config loads the daemon configuration file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLCipher = "sqlcipher"
	DriverFile      = "file"
)

// Config is the on-disk daemon configuration.
type Config struct {
	Listen             string        `yaml:"listen"`
	DataDir            string        `yaml:"dataDir,omitempty"`
	TickInterval       time.Duration `yaml:"tickInterval"`
	BadgeDoneWindow    time.Duration `yaml:"badgeDoneWindow"`
	HeartbeatInterval  time.Duration `yaml:"heartbeatInterval"`
	HistoryLimit       int           `yaml:"historyLimit"`
	DisplayName        string        `yaml:"displayName"`
	OpenCompletionPage bool          `yaml:"openCompletionPage"`
	Metrics            bool          `yaml:"metrics"`
	Store              StoreConfig   `yaml:"store"`
	Browser            BrowserConfig `yaml:"browser"`
}

// StoreConfig selects the SessionStore implementation.
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

// BrowserConfig selects how the daemon reaches the browser.
type BrowserConfig struct {
	ControlURL string `yaml:"controlURL,omitempty"`
	Launch     bool   `yaml:"launch"`
	Headless   bool   `yaml:"headless"`
	Bin        string `yaml:"bin,omitempty"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Listen:            "127.0.0.1:7717",
		TickInterval:      time.Second,
		BadgeDoneWindow:   5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HistoryLimit:      50,
		DisplayName:       "User",
		Metrics:           true,
		Store:             StoreConfig{Driver: DriverSQLCipher},
		Browser:           BrowserConfig{Launch: true},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if c.TickInterval <= 0 {
		return errors.New("tickInterval must be positive")
	}
	if c.BadgeDoneWindow < 0 {
		return errors.New("badgeDoneWindow must not be negative")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeatInterval must be positive")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("historyLimit must be positive")
	}
	switch c.Store.Driver {
	case DriverSQLCipher, DriverFile:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	return nil
}

// BaseURL is the control API root derived from Listen.
func (c Config) BaseURL() string {
	return "http://" + c.Listen
}

// Save writes the configuration as YAML with 0600 permissions.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(durationStrings(cfg))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// fileConfig mirrors Config with durations as strings so saved files
// stay human-editable ("1s" rather than nanoseconds).
type fileConfig struct {
	Listen             string        `yaml:"listen"`
	DataDir            string        `yaml:"dataDir,omitempty"`
	TickInterval       string        `yaml:"tickInterval"`
	BadgeDoneWindow    string        `yaml:"badgeDoneWindow"`
	HeartbeatInterval  string        `yaml:"heartbeatInterval"`
	HistoryLimit       int           `yaml:"historyLimit"`
	DisplayName        string        `yaml:"displayName"`
	OpenCompletionPage bool          `yaml:"openCompletionPage"`
	Metrics            bool          `yaml:"metrics"`
	Store              StoreConfig   `yaml:"store"`
	Browser            BrowserConfig `yaml:"browser"`
}

func durationStrings(c Config) fileConfig {
	return fileConfig{
		Listen:             c.Listen,
		DataDir:            c.DataDir,
		TickInterval:       c.TickInterval.String(),
		BadgeDoneWindow:    c.BadgeDoneWindow.String(),
		HeartbeatInterval:  c.HeartbeatInterval.String(),
		HistoryLimit:       c.HistoryLimit,
		DisplayName:        c.DisplayName,
		OpenCompletionPage: c.OpenCompletionPage,
		Metrics:            c.Metrics,
		Store:              c.Store,
		Browser:            c.Browser,
	}
}
