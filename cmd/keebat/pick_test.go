package main

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/devicefactory"
	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
	"github.com/Cirius1792/split-keeb-battery/internal/testutils"
	"github.com/Cirius1792/split-keeb-battery/pkg/config"
)

func pickTestDevice(name, addr string, rssi int, connectable bool, services ...string) device.DeviceInfo {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	adv := testutils.NewAdvertisementBuilder().
		WithName(name).
		WithAddress(addr).
		WithRSSI(rssi).
		WithConnectable(connectable).
		WithServices(services...).
		Build()
	return devicefactory.NewDeviceFromAdvertisement(adv, logger)
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		available int
		expected  []int
		errText   string
		cancelled bool
	}{
		{
			name:      "single device",
			input:     "1\n",
			available: 3,
			expected:  []int{0},
		},
		{
			name:      "both halves",
			input:     "1,3\n",
			available: 3,
			expected:  []int{0, 2},
		},
		{
			name:      "whitespace tolerated",
			input:     " 2 , 1 \n",
			available: 3,
			expected:  []int{1, 0},
		},
		{
			name:      "empty input cancels",
			input:     "\n",
			available: 3,
			cancelled: true,
		},
		{
			name:      "blank input cancels",
			input:     "   \n",
			available: 3,
			cancelled: true,
		},
		{
			name:      "not a number",
			input:     "first\n",
			available: 3,
			errText:   "expected a number from the list",
		},
		{
			name:      "out of range high",
			input:     "4\n",
			available: 3,
			errText:   "out of range 1-3",
		},
		{
			name:      "out of range zero",
			input:     "0\n",
			available: 3,
			errText:   "out of range 1-3",
		},
		{
			name:      "duplicate",
			input:     "2,2\n",
			available: 3,
			errText:   "selected twice",
		},
		{
			name:      "too many",
			input:     "1,2,3\n",
			available: 3,
			errText:   "at most 2 devices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indices, err := parseSelection(tt.input, tt.available, maxPickable)

			if tt.cancelled {
				assert.ErrorIs(t, err, monitor.ErrNoDeviceSelected)
				return
			}
			if tt.errText != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, indices)
		})
	}
}

func TestSortCandidates(t *testing.T) {
	found := map[string]device.DeviceInfo{
		"11": pickTestDevice("Lily58", "11:11:11:11:11:11", -72, true),
		"22": pickTestDevice("Corne", "22:22:22:22:22:22", -51, true),
		"33": pickTestDevice("iBeacon", "33:33:33:33:33:33", -40, false),
		"44": pickTestDevice("Aurora", "44:44:44:44:44:44", -72, true),
	}

	candidates := sortCandidates(found)

	require.Len(t, candidates, 3, "unconnectable devices are dropped")
	assert.Equal(t, "Corne", candidates[0].Name())
	assert.Equal(t, "Aurora", candidates[1].Name())
	assert.Equal(t, "Lily58", candidates[2].Name())
}

func TestAdvertisesBattery(t *testing.T) {
	longForm := pickTestDevice("Corne", "11:11:11:11:11:11", -50, true,
		"0000180f-0000-1000-8000-00805f9b34fb")
	assert.True(t, advertisesBattery(longForm), "full 128-bit form normalizes to 180f")

	shortForm := pickTestDevice("Lily58", "22:22:22:22:22:22", -50, true, "180F")
	assert.True(t, advertisesBattery(shortForm))

	hidOnly := pickTestDevice("MX Anywhere", "33:33:33:33:33:33", -50, true, "1812")
	assert.False(t, advertisesBattery(hidOnly))

	none := pickTestDevice("Mystery", "44:44:44:44:44:44", -50, true)
	assert.False(t, advertisesBattery(none))
}

func TestPrintCandidates(t *testing.T) {
	candidates := []device.DeviceInfo{
		pickTestDevice("Corne", "DE:AD:BE:EF:00:01", -48, true, "180f"),
		// Stub peripheral keeps its empty name; adapter-backed devices fall
		// back to the address instead
		testutils.NewPeripheralBuilder().WithAddress("DE:AD:BE:EF:00:02").Build(),
		pickTestDevice("Charybdis Nano Wireless BT", "DE:AD:BE:EF:00:03", -70, true),
	}

	output := captureStdout(t, func() {
		printCandidates(candidates)
	})

	// The 26-char name is cut to keep columns aligned
	testutils.NewTextAsserter(t).
		WithOptions(testutils.WithIgnoreTrailingWhitespace(true)).
		Assert(output, ""+
			"   #  NAME                      ADDRESS             RSSI      BATTERY\n"+
			"   1  Corne                     DE:AD:BE:EF:00:01    -48 dBm  yes\n"+
			"   2  (unknown)                 DE:AD:BE:EF:00:02    -50 dBm\n"+
			"   3  Charybdis Nano Wirele...  DE:AD:BE:EF:00:03    -70 dBm\n")
}

func TestPickDevicesNeedsTerminal(t *testing.T) {
	// go test wires stdin to /dev/null, exactly the environment a service
	// run sees. The picker must bail out before touching the adapter.
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	_, err := pickDevices(context.Background(), config.Defaults(), logger)

	assert.ErrorIs(t, err, monitor.ErrNoDeviceSelected)
}
