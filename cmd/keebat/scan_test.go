package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/devicefactory"
	"github.com/Cirius1792/split-keeb-battery/internal/testutils"
)

// ScanCmdSuite runs the scan command against a fake adapter replaying a
// split keyboard and an unrelated beacon.
type ScanCmdSuite struct {
	testutils.FakeAdapterSuite
}

func (s *ScanCmdSuite) SetupTest() {
	resetScanFlags()
	s.Advertisements = []device.Advertisement{
		testutils.NewAdvertisementBuilder().
			WithName("Corne").
			WithAddress("DE:AD:BE:EF:00:01").
			WithRSSI(-48).
			WithServices("180f", "1812").
			Build(),
		testutils.NewAdvertisementBuilder().
			WithName("Thermo Beacon").
			WithAddress("DE:AD:BE:EF:00:02").
			WithRSSI(-71).
			WithServices("181a").
			Build(),
	}
	s.FakeAdapterSuite.SetupTest()
}

// resetScanFlags restores flag defaults between Execute calls. Cobra parses
// onto the same package vars every time and never clears Changed bits.
func resetScanFlags() {
	scanDuration = 10 * time.Second
	scanFormat = "table"
	scanServices = nil
	scanAllow = nil
	scanBlock = nil
	scanWatch = false
	scanCmd.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
}

func (s *ScanCmdSuite) scanRoot() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.AddCommand(scanCmd)
	return cmd
}

func (s *ScanCmdSuite) TestHelp() {
	output, err := executeCommand(s.scanRoot(), "scan", "--help")
	s.Require().NoError(err)

	s.Assert().Contains(output, "Scan for Bluetooth Low Energy devices")
	s.Assert().Contains(output, "--duration")
	s.Assert().Contains(output, "--watch")
	s.Assert().Contains(output, "--services")
}

func (s *ScanCmdSuite) TestInvalidFormat() {
	_, err := executeCommand(s.scanRoot(), "scan", "--format=yaml")

	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "must be table or json")
}

func (s *ScanCmdSuite) TestWatchRejectsJSON() {
	_, err := executeCommand(s.scanRoot(), "scan", "--watch", "--format=json")

	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "watch mode supports table output only")
}

func (s *ScanCmdSuite) TestInvalidServiceUUID() {
	_, err := executeCommand(s.scanRoot(), "scan", "--services=,", "-d=50ms")

	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "invalid service UUID")
}

func (s *ScanCmdSuite) TestFlagParsing() {
	tests := []struct {
		name  string
		args  []string
		check func()
	}{
		{
			name: "defaults",
			args: nil,
			check: func() {
				s.Assert().Equal(10*time.Second, scanDuration)
				s.Assert().Equal("table", scanFormat)
				s.Assert().False(scanWatch)
			},
		},
		{
			name: "custom duration",
			args: []string{"--duration=30s"},
			check: func() { s.Assert().Equal(30*time.Second, scanDuration) },
		},
		{
			name: "json format",
			args: []string{"--format=json"},
			check: func() { s.Assert().Equal("json", scanFormat) },
		},
		{
			name: "service filter",
			args: []string{"--services=180f,1812"},
			check: func() { s.Assert().Equal([]string{"180f", "1812"}, scanServices) },
		},
		{
			name: "allow and block lists",
			args: []string{"--allow=AA:BB:CC:DD:EE:FF", "--block=11:22:33:44:55:66"},
			check: func() {
				s.Assert().Equal([]string{"AA:BB:CC:DD:EE:FF"}, scanAllow)
				s.Assert().Equal([]string{"11:22:33:44:55:66"}, scanBlock)
			},
		},
		{
			name: "watch shorthand",
			args: []string{"-w"},
			check: func() { s.Assert().True(scanWatch) },
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resetScanFlags()
			s.Require().NoError(scanCmd.ParseFlags(tt.args))
			tt.check()
		})
	}
}

func (s *ScanCmdSuite) TestSingleScanTable() {
	var err error
	output := captureStdout(s.T(), func() {
		_, err = executeCommand(s.scanRoot(), "scan", "-d=50ms")
	})
	s.Require().NoError(err)

	s.Assert().Contains(output, "NAME")
	s.Assert().Contains(output, "ADDRESS")
	s.Assert().Contains(output, "Corne")
	s.Assert().Contains(output, "DE:AD:BE:EF:00:01")
	s.Assert().Contains(output, "yes")
	s.Assert().Contains(output, "180f")

	// Strongest signal sorts first
	s.Assert().Less(strings.Index(output, "Corne"), strings.Index(output, "Thermo Beacon"))
}

func (s *ScanCmdSuite) TestSingleScanJSON() {
	var err error
	output := captureStdout(s.T(), func() {
		_, err = executeCommand(s.scanRoot(), "scan", "-d=50ms", "--format=json")
	})
	s.Require().NoError(err)

	var devices []scanDeviceJSON
	s.Require().NoError(json.Unmarshal([]byte(output), &devices))
	s.Require().Len(devices, 2)

	byName := make(map[string]scanDeviceJSON)
	for _, d := range devices {
		byName[d.Name] = d
	}
	corne := byName["Corne"]
	s.Assert().Equal("DE:AD:BE:EF:00:01", corne.Address)
	s.Assert().Equal(-48, corne.RSSI)
	s.Assert().True(corne.BatteryService)
	s.Assert().Contains(corne.Services, "180f")
	s.Assert().False(byName["Thermo Beacon"].BatteryService)
}

func (s *ScanCmdSuite) TestEmptyResults() {
	s.Advertisements = nil

	var err error
	output := captureStdout(s.T(), func() {
		_, err = executeCommand(s.scanRoot(), "scan", "-d=50ms")
	})
	s.Require().NoError(err)
	s.Assert().Contains(output, "No devices discovered")
}

func (s *ScanCmdSuite) TestServiceFilter() {
	var err error
	output := captureStdout(s.T(), func() {
		_, err = executeCommand(s.scanRoot(), "scan", "-d=50ms", "--services=180f")
	})
	s.Require().NoError(err)

	s.Assert().Contains(output, "Corne")
	s.Assert().NotContains(output, "Thermo Beacon")
}

func (s *ScanCmdSuite) TestBlockList() {
	var err error
	output := captureStdout(s.T(), func() {
		_, err = executeCommand(s.scanRoot(), "scan", "-d=50ms", "--block=DE:AD:BE:EF:00:01")
	})
	s.Require().NoError(err)

	s.Assert().NotContains(output, "Corne")
	s.Assert().Contains(output, "Thermo Beacon")
}

func (s *ScanCmdSuite) TestScanErrorSurfaces() {
	s.ScanErr = errors.New("hci socket down")

	_, err := executeCommand(s.scanRoot(), "scan", "-d=50ms")

	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "hci socket down")
}

func (s *ScanCmdSuite) TestWatchWithExplicitDurationEnds() {
	// An explicit --duration bounds the watch; the final table stays up.
	var err error
	output := captureStdout(s.T(), func() {
		_, err = executeCommand(s.scanRoot(), "scan", "-w", "-d=100ms")
	})
	s.Require().NoError(err)

	s.Assert().Contains(output, "LAST SEEN")
	s.Assert().Contains(output, "Corne")
	s.Assert().Contains(output, "Press Ctrl+C to stop")
}

func TestScanCmdSuite(t *testing.T) {
	suite.Run(t, new(ScanCmdSuite))
}

func scanTestDevice(name, addr string, rssi int, services ...string) device.DeviceInfo {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	adv := testutils.NewAdvertisementBuilder().
		WithName(name).
		WithAddress(addr).
		WithRSSI(rssi).
		WithServices(services...).
		Build()
	return devicefactory.NewDeviceFromAdvertisement(adv, logger)
}

func TestSortScanRows(t *testing.T) {
	rows := []scanRow{
		{info: scanTestDevice("Lily58", "11:11:11:11:11:11", -70)},
		{info: scanTestDevice("Corne", "22:22:22:22:22:22", -50)},
		{info: scanTestDevice("Aurora", "33:33:33:33:33:33", -70)},
	}

	sortScanRows(rows)

	assert.Equal(t, "Corne", rows[0].info.Name())
	// Equal RSSI falls back to name order
	assert.Equal(t, "Aurora", rows[1].info.Name())
	assert.Equal(t, "Lily58", rows[2].info.Name())
}

func TestPrintDevicesTableFormatting(t *testing.T) {
	rows := []scanRow{
		{info: scanTestDevice("Charybdis Nano Wireless", "AA:BB:CC:DD:EE:FF", -45, "180f")},
		// A peripheral stub keeps its empty name, unlike the adapter-backed
		// device which falls back to the address
		{info: testutils.NewPeripheralBuilder().WithAddress("11:22:33:44:55:66").Build()},
	}

	var err error
	output := captureStdout(t, func() {
		err = printDevicesTable(rows, false)
	})
	require.NoError(t, err)

	// Long names are truncated to keep the table narrow
	assert.Contains(t, output, "Charybdis Nano Wi...")
	assert.NotContains(t, output, "Charybdis Nano Wireless")
	assert.Contains(t, output, "(unknown)")
	assert.Contains(t, output, "-45 dBm")
}

func TestClearScreen(t *testing.T) {
	captureStdout(t, func() {
		assert.NotPanics(t, clearScreen)
	})
}
