package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.NotNil(t, cfg)
	assert.Empty(t, cfg.Devices)
	assert.Equal(t, 20, cfg.Battery.LowThreshold)
	assert.Equal(t, 0, cfg.Battery.RenotifyStep)
	assert.Equal(t, 30*time.Second, cfg.Battery.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 5*time.Minute, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 3, cfg.Reconnect.NotFoundNotifyAfter)
	assert.True(t, cfg.Tray.Enabled)
	assert.Equal(t, "Keyboard battery", cfg.Tray.Title)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
devices:
  - name: "Corne"
  - address: "DF:31:22:9A:1F:30"
battery:
  low_threshold: 15
reconnect:
  scan_timeout: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "Corne", cfg.Devices[0].Name)
	assert.Equal(t, "DF:31:22:9A:1F:30", cfg.Devices[1].Address)
	assert.Equal(t, 15, cfg.Battery.LowThreshold)
	assert.Equal(t, 10*time.Second, cfg.Reconnect.ScanTimeout)

	// Untouched fields keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Battery.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.InitialDelay)
	assert.True(t, cfg.Tray.Enabled)
}

func TestLoad_ExplicitFalseSurvivesDefaults(t *testing.T) {
	path := writeConfig(t, `
tray:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Tray.Enabled, "an explicit enabled: false MUST not be overwritten by the default")
	assert.Equal(t, "Keyboard battery", cfg.Tray.Title)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "devices: [unclosed")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "threshold above 100",
			mutate:  func(c *Config) { c.Battery.LowThreshold = 101 },
			wantErr: "low_threshold",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.Battery.LowThreshold = -1 },
			wantErr: "low_threshold",
		},
		{
			name:    "negative renotify step",
			mutate:  func(c *Config) { c.Battery.RenotifyStep = -5 },
			wantErr: "renotify_step",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Battery.PollInterval = 0 },
			wantErr: "poll_interval",
		},
		{
			name:    "zero scan timeout",
			mutate:  func(c *Config) { c.Reconnect.ScanTimeout = 0 },
			wantErr: "scan_timeout",
		},
		{
			name:    "max delay below initial delay",
			mutate:  func(c *Config) { c.Reconnect.MaxDelay = time.Second },
			wantErr: "max_delay",
		},
		{
			name:    "notify-after below one",
			mutate:  func(c *Config) { c.Reconnect.NotFoundNotifyAfter = 0 },
			wantErr: "notfound_notify_after",
		},
		{
			name: "three devices",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{{Name: "a"}, {Name: "b"}, {Name: "c"}}
			},
			wantErr: "at most two",
		},
		{
			name: "device without identity",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{{}}
			},
			wantErr: "name or an address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
