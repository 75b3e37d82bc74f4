package main

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
)

func TestAutostartArgs(t *testing.T) {
	tests := []struct {
		name       string
		deviceName string
		deviceID   string
		configPath string
		expected   []string
	}{
		{
			name:     "nothing set",
			expected: nil,
		},
		{
			name:       "device name",
			deviceName: "Corne",
			expected:   []string{"--device-name", "Corne"},
		},
		{
			name:       "quotes are stripped before re-quoting for the unit",
			deviceName: `"Corne Choc"`,
			expected:   []string{"--device-name", "Corne Choc"},
		},
		{
			name:     "device id",
			deviceID: "DE:AD:BE:EF:00:01",
			expected: []string{"--device-id", "DE:AD:BE:EF:00:01"},
		},
		{
			name:       "all selectors and config",
			deviceName: "Corne",
			deviceID:   "DE:AD:BE:EF:00:01",
			configPath: "/home/kc/.config/keebat/config.yaml",
			expected: []string{
				"--device-name", "Corne",
				"--device-id", "DE:AD:BE:EF:00:01",
				"--config", "/home/kc/.config/keebat/config.yaml",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, autostartArgs(tt.deviceName, tt.deviceID, tt.configPath))
		})
	}
}

func TestAutostartInstallNeedsSomethingToTrack(t *testing.T) {
	// Without selectors and with an empty config the service would start,
	// find no terminal, and die. Refuse the install instead.
	origName, origID, origPath := runDeviceName, runDeviceID, runConfigPath
	runDeviceName, runDeviceID = "", ""
	runConfigPath = filepath.Join(t.TempDir(), "absent.yaml")
	defer func() {
		runDeviceName, runDeviceID, runConfigPath = origName, origID, origPath
	}()

	err := runAutostartInstall(autostartInstallCmd, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, monitor.ErrNoDeviceSelected)
}

func TestAutostartHelp(t *testing.T) {
	root := &cobra.Command{}
	root.AddCommand(autostartCmd)

	output, err := executeCommand(root, "autostart", "--help")
	require.NoError(t, err)

	assert.Contains(t, output, "install")
	assert.Contains(t, output, "uninstall")
	assert.Contains(t, output, "status")
}
