package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/Cirius1792/split-keeb-battery/internal/bledb"
	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/testutils"
)

// ReadCmdSuite drives the read command through the finder seam, so no
// adapter or radio is involved.
type ReadCmdSuite struct {
	suite.Suite

	finder *testutils.FakeFinder
}

func (s *ReadCmdSuite) SetupTest() {
	resetReadFlags()
	s.finder = testutils.NewFakeFinder()
	readFinder = s.finder
}

func (s *ReadCmdSuite) TearDownTest() {
	readFinder = nil
}

func resetReadFlags() {
	readTimeout = 5 * time.Second
	readJSON = false
	readCmd.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
}

func (s *ReadCmdSuite) readRoot() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.AddCommand(readCmd)
	return cmd
}

// splitKeyboard builds a fake Corne with one battery level per half,
// labeled the way ZMK does.
func splitKeyboard() *testutils.FakePeripheral {
	return testutils.NewPeripheralBuilder().
		WithName("Corne").
		WithAddress("DE:AD:BE:EF:00:01").
		WithService(bledb.ServiceBattery).
		WithCharacteristic(bledb.CharBatteryLevel, "read,notify", []byte{81}).
		WithUserDescription("LEFT").
		WithCharacteristic(bledb.CharBatteryLevel, "read,notify", []byte{74}).
		WithUserDescription("RIGHT").
		Build()
}

func (s *ReadCmdSuite) TestTableOutput() {
	keyboard := splitKeyboard()
	s.finder.Append(testutils.Found(keyboard))

	var err error
	output := captureStdout(s.T(), func() {
		_, err = executeCommand(s.readRoot(), "read", "Corne")
	})
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(output, ""+
		"LABEL  LEVEL\n"+
		"LEFT   81%\n"+
		"RIGHT  74%\n")

	// A bare name resolves as a name selector
	s.Require().Len(s.finder.Selectors(), 1)
	s.Assert().Equal(device.Selector{Name: "Corne"}, s.finder.Selectors()[0])

	// One-shot reads leave the link down afterwards
	s.Assert().False(keyboard.IsConnected())
}

func (s *ReadCmdSuite) TestJSONOutput() {
	s.finder.Append(testutils.Found(splitKeyboard()))

	var err error
	output := captureStdout(s.T(), func() {
		_, err = executeCommand(s.readRoot(), "read", "Corne", "--json")
	})
	s.Require().NoError(err)

	var readings []batteryReading
	s.Require().NoError(json.Unmarshal([]byte(output), &readings))
	s.Require().Len(readings, 2)
	s.Assert().Equal(batteryReading{Label: "LEFT", Level: 81}, readings[0])
	s.Assert().Equal(batteryReading{Label: "RIGHT", Level: 74}, readings[1])
}

func (s *ReadCmdSuite) TestAddressArgumentBecomesIDSelector() {
	s.finder.Append(testutils.Found(splitKeyboard()))

	captureStdout(s.T(), func() {
		_, _ = executeCommand(s.readRoot(), "read", "DE:AD:BE:EF:00:01")
	})

	s.Require().Len(s.finder.Selectors(), 1)
	s.Assert().Equal(device.Selector{ID: "DE:AD:BE:EF:00:01"}, s.finder.Selectors()[0])
}

func (s *ReadCmdSuite) TestFailedHalfKeepsTheOther() {
	keyboard := splitKeyboard()
	keyboard.CharacteristicAt(bledb.ServiceBattery, bledb.CharBatteryLevel, 1).
		FailReads(errors.New("gatt: read timeout"))
	s.finder.Append(testutils.Found(keyboard))

	var err error
	output := captureStdout(s.T(), func() {
		_, err = executeCommand(s.readRoot(), "read", "Corne")
	})
	s.Require().NoError(err)

	s.Assert().Contains(output, "81%")
	s.Assert().Contains(output, "-- (gatt: read timeout)")
}

func (s *ReadCmdSuite) TestNoBatteryService() {
	plainMouse := testutils.NewPeripheralBuilder().
		WithName("MX Anywhere").
		WithService(bledb.ServiceHumanInterface).
		Build()
	s.finder.Append(testutils.Found(plainMouse))

	_, err := executeCommand(s.readRoot(), "read", "MX Anywhere")

	s.Require().Error(err)
	s.Assert().ErrorIs(err, device.ErrCharacteristicUnsupported)
}

func (s *ReadCmdSuite) TestDeviceNotFound() {
	s.finder.Append(testutils.NotFound())

	_, err := executeCommand(s.readRoot(), "read", "Corne")

	s.Require().Error(err)
	s.Assert().ErrorIs(err, device.ErrDeviceNotFound)
}

func (s *ReadCmdSuite) TestConnectFailure() {
	keyboard := splitKeyboard()
	keyboard.FailNextConnect(fmt.Errorf("%w: connect window elapsed", device.ErrTimeout))
	s.finder.Append(testutils.Found(keyboard))

	_, err := executeCommand(s.readRoot(), "read", "Corne")

	s.Require().Error(err)
	s.Assert().ErrorIs(err, device.ErrTimeout)
}

func (s *ReadCmdSuite) TestRequiresArgument() {
	_, err := executeCommand(s.readRoot(), "read")

	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "accepts 1 arg")
}

func TestReadCmdSuite(t *testing.T) {
	suite.Run(t, new(ReadCmdSuite))
}

func TestSelectorFromArg(t *testing.T) {
	tests := []struct {
		name     string
		arg      string
		expected device.Selector
	}{
		{
			name:     "mac address",
			arg:      "DE:AD:BE:EF:00:01",
			expected: device.Selector{ID: "DE:AD:BE:EF:00:01"},
		},
		{
			name:     "lowercase mac address",
			arg:      "de:ad:be:ef:00:01",
			expected: device.Selector{ID: "de:ad:be:ef:00:01"},
		},
		{
			name:     "platform uuid",
			arg:      "6847EF38-EFC3-4C55-9DC7-EBC8F46125AE",
			expected: device.Selector{ID: "6847EF38-EFC3-4C55-9DC7-EBC8F46125AE"},
		},
		{
			name:     "device name",
			arg:      "Corne",
			expected: device.Selector{Name: "Corne"},
		},
		{
			name:     "name with colon-free digits",
			arg:      "Lily58 v2",
			expected: device.Selector{Name: "Lily58 v2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, selectorFromArg(tt.arg))
		})
	}
}
