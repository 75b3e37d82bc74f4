package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Cirius1792/split-keeb-battery/inspector"
	"github.com/Cirius1792/split-keeb-battery/internal/bledb"
	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
	"github.com/Cirius1792/split-keeb-battery/scanner"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <name-or-address>",
	Short: "Read battery levels once and exit",
	Long: `Connect to a keyboard, read every Battery Level instance it exposes,
print them, and disconnect.

A split keyboard reports one level per half:

  $ keebat read Corne
  LABEL  LEVEL
  LEFT   81%
  RIGHT  74%

The argument is the advertised device name or its address.`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var (
	readTimeout time.Duration
	readJSON    bool
)

// readScanWindow bounds the advertisement scan when the keyboard is given
// by name instead of address.
const readScanWindow = 30 * time.Second

// readFinder resolves the selector to a connectable device. Tests replace
// it; the default scans through the BLE transport.
var readFinder monitor.DeviceFinder

func init() {
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 5*time.Second, "Per-characteristic read timeout")
	readCmd.Flags().BoolVar(&readJSON, "json", false, "Output as JSON")
}

func runRead(cmd *cobra.Command, args []string) error {
	sel := selectorFromArg(args[0])

	logger, err := configureLogger(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	progress := NewProgressPrinter(fmt.Sprintf("Reading battery levels from %s", sel), "Scanning")
	progress.Start()
	defer progress.Stop()

	finder := readFinder
	if finder == nil {
		s, err := scanner.NewScanner(logger)
		if err != nil {
			return fmt.Errorf("failed to create BLE scanner: %w", err)
		}
		finder = s
	}

	dev, err := finder.FindDevice(ctx, sel, readScanWindow)
	if err != nil {
		return err
	}

	opts := &inspector.InspectOptions{
		ConnectTimeout:        30 * time.Second,
		DescriptorReadTimeout: readTimeout,
	}

	readings, err := inspector.InspectDevice(ctx, dev, opts, logger, progress.Callback(), func(d device.Device) ([]batteryReading, error) {
		progress.Stop()
		return readBatteryLevels(d)
	})
	if err != nil {
		return err
	}

	progress.Stop()
	if readJSON {
		return printReadingsJSON(readings)
	}
	return printReadingsTable(readings)
}

type batteryReading struct {
	Label string `json:"label"`
	Level int    `json:"level"` // -1 when the read failed
	Error string `json:"error,omitempty"`
}

// readBatteryLevels reads every Battery Level instance on a connected
// device. Individual read failures are reported per half instead of
// aborting the whole command.
func readBatteryLevels(dev device.Device) ([]batteryReading, error) {
	conn := dev.GetConnection()
	if conn == nil {
		return nil, device.ErrNotConnected
	}

	chars := conn.FindCharacteristics(bledb.ServiceBattery, bledb.CharBatteryLevel)
	if len(chars) == 0 {
		return nil, device.ErrCharacteristicUnsupported
	}

	readings := make([]batteryReading, 0, len(chars))
	for i, char := range chars {
		reading := batteryReading{
			Label: monitor.HalfLabel(char, i, len(chars)),
			Level: monitor.LevelUnknown,
		}
		data, err := char.Read(readTimeout)
		if err != nil {
			reading.Error = err.Error()
		} else if level, perr := monitor.ParseBatteryLevel(data); perr != nil {
			reading.Error = perr.Error()
		} else {
			reading.Level = level
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func printReadingsTable(readings []batteryReading) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tLEVEL")
	for _, r := range readings {
		if r.Error != "" {
			fmt.Fprintf(w, "%s\t-- (%s)\n", r.Label, r.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%d%%\n", r.Label, r.Level)
	}
	return w.Flush()
}

func printReadingsJSON(readings []batteryReading) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(readings)
}

var macAddressPattern = regexp.MustCompile(`^(?i:[0-9a-f]{2}(:[0-9a-f]{2}){5})$`)
var uuidAddressPattern = regexp.MustCompile(`^(?i:[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

// selectorFromArg treats MAC-shaped and UUID-shaped arguments as addresses
// (macOS reports peripherals by UUID) and everything else as a name.
func selectorFromArg(arg string) device.Selector {
	if macAddressPattern.MatchString(arg) || uuidAddressPattern.MatchString(arg) {
		return device.Selector{ID: arg}
	}
	return device.Selector{Name: arg}
}
