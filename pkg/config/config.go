package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// DeviceConfig selects one keyboard to track, by advertised name or address.
// Exactly one of the two is enough; address wins when both are set.
type DeviceConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// BatteryConfig tunes level polling and low-battery alerting.
type BatteryConfig struct {
	// LowThreshold is the percentage at or below which a low battery
	// notification fires (once per downward crossing).
	LowThreshold int `yaml:"low_threshold" default:"20"`
	// RenotifyStep re-fires a notification every N points the level drops
	// below the last notified one. 0 disables repeats.
	RenotifyStep int `yaml:"renotify_step" default:"0"`
	// PollInterval is the read interval for battery characteristics that
	// do not support notifications.
	PollInterval time.Duration `yaml:"poll_interval" default:"30s"`
}

// ReconnectConfig tunes the scan/connect/retry loop.
type ReconnectConfig struct {
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"30s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	InitialDelay   time.Duration `yaml:"initial_delay" default:"2s"`
	MaxDelay       time.Duration `yaml:"max_delay" default:"5m"`
	// NotFoundNotifyAfter is the number of consecutive empty scan windows
	// after which the user is told the device cannot be found.
	NotFoundNotifyAfter int `yaml:"notfound_notify_after" default:"3"`
}

// TrayConfig tunes the system tray sink.
type TrayConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Title   string `yaml:"title" default:"Keyboard battery"`
}

// Config holds application configuration.
type Config struct {
	Devices   []DeviceConfig  `yaml:"devices"`
	Battery   BatteryConfig   `yaml:"battery"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Tray      TrayConfig      `yaml:"tray"`
}

// Defaults returns a configuration with every default applied.
func Defaults() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "keebat", "config.yaml"), nil
}

// Load reads the YAML config at path. A missing file yields the defaults;
// present fields override them. Defaults are applied before parsing so an
// explicit false/zero in the file survives.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the monitor cannot run with.
func Validate(cfg *Config) error {
	if cfg.Battery.LowThreshold < 0 || cfg.Battery.LowThreshold > 100 {
		return fmt.Errorf("battery.low_threshold must be between 0 and 100, got %d", cfg.Battery.LowThreshold)
	}
	if cfg.Battery.RenotifyStep < 0 {
		return fmt.Errorf("battery.renotify_step must not be negative, got %d", cfg.Battery.RenotifyStep)
	}
	if cfg.Battery.PollInterval <= 0 {
		return fmt.Errorf("battery.poll_interval must be positive, got %v", cfg.Battery.PollInterval)
	}
	if cfg.Reconnect.ScanTimeout <= 0 {
		return fmt.Errorf("reconnect.scan_timeout must be positive, got %v", cfg.Reconnect.ScanTimeout)
	}
	if cfg.Reconnect.ConnectTimeout <= 0 {
		return fmt.Errorf("reconnect.connect_timeout must be positive, got %v", cfg.Reconnect.ConnectTimeout)
	}
	if cfg.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("reconnect.initial_delay must be positive, got %v", cfg.Reconnect.InitialDelay)
	}
	if cfg.Reconnect.MaxDelay < cfg.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect.max_delay must be at least initial_delay, got %v < %v", cfg.Reconnect.MaxDelay, cfg.Reconnect.InitialDelay)
	}
	if cfg.Reconnect.NotFoundNotifyAfter < 1 {
		return fmt.Errorf("reconnect.notfound_notify_after must be at least 1, got %d", cfg.Reconnect.NotFoundNotifyAfter)
	}
	if len(cfg.Devices) > 2 {
		return fmt.Errorf("at most two devices can be tracked, got %d", len(cfg.Devices))
	}
	for i, dev := range cfg.Devices {
		if dev.Name == "" && dev.Address == "" {
			return fmt.Errorf("devices[%d] needs a name or an address", i)
		}
	}
	return nil
}
