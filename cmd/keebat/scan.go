package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby BLE devices",
	Long: `Scan for Bluetooth Low Energy devices and display what was seen:
name, address, signal strength, and whether the advertisement carried the
Battery Service the monitor depends on.

Use --watch to keep the table refreshing until interrupted.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanServices []string
	scanAllow    []string
	scanBlock    []string
	scanWatch    bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Only show devices advertising these service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllow, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlock, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously scan and refresh the table")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format %q: must be table or json", scanFormat)
	}
	if scanWatch && scanFormat == "json" {
		return fmt.Errorf("watch mode supports table output only")
	}

	logger, err := configureLogger(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}

	var serviceUUIDs []string
	if len(scanServices) > 0 {
		serviceUUIDs, err = device.ValidateUUID(scanServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	duration := scanDuration
	if scanWatch && !cmd.Flags().Changed("duration") {
		duration = 0 // watch scans until interrupted
	}

	s, err := scanner.NewScanner(logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	opts := &scanner.ScanOptions{
		Duration:        duration,
		AllowDuplicates: true,
		ServiceUUIDs:    serviceUUIDs,
		AllowList:       scanAllow,
		BlockList:       scanBlock,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if scanWatch {
		return runWatchScan(ctx, s, opts)
	}
	return runSingleScan(ctx, s, opts, duration)
}

func runSingleScan(ctx context.Context, s *scanner.Scanner, opts *scanner.ScanOptions, duration time.Duration) error {
	progress := NewCountdownProgressPrinter("Scanning for BLE devices", "Scanning", duration)
	progress.Start()
	defer progress.Stop()

	found, err := s.Scan(ctx, opts, progress.Callback())
	progress.Stop()
	if err != nil {
		return err
	}

	rows := make([]scanRow, 0, len(found))
	for _, info := range found {
		rows = append(rows, scanRow{info: info})
	}
	sortScanRows(rows)

	if scanFormat == "json" {
		return printDevicesJSON(rows)
	}
	return printDevicesTable(rows, false)
}

// runWatchScan redraws the device table once a second while a background
// scan feeds the event stream.
func runWatchScan(ctx context.Context, s *scanner.Scanner, opts *scanner.ScanOptions) error {
	infos := make(map[string]device.DeviceInfo)
	lastSeen := make(map[string]time.Time)

	scanErrCh := make(chan error, 1)
	go func() {
		_, err := s.Scan(ctx, opts, nil)
		scanErrCh <- err
	}()

	redraw := func() error {
		rows := make([]scanRow, 0, len(infos))
		for addr, info := range infos {
			rows = append(rows, scanRow{info: info, lastSeen: lastSeen[addr]})
		}
		sortScanRows(rows)

		clearScreen()
		if err := printDevicesTable(rows, true); err != nil {
			return err
		}
		fmt.Println("\nPress Ctrl+C to stop")
		return nil
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return redraw()
		case err := <-scanErrCh:
			if err != nil {
				return err
			}
			// Bounded-duration watch: the window elapsed, show the final table
			return redraw()
		case <-ticker.C:
			if err := redraw(); err != nil {
				return err
			}
		case ev := <-s.Events():
			addr := ev.DeviceInfo.Address()
			infos[addr] = ev.DeviceInfo
			lastSeen[addr] = time.Now()
		}
	}
}

type scanRow struct {
	info     device.DeviceInfo
	lastSeen time.Time
}

// sortScanRows orders by signal strength, strongest first, names breaking
// ties so the output is stable between redraws.
func sortScanRows(rows []scanRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].info.RSSI() != rows[j].info.RSSI() {
			return rows[i].info.RSSI() > rows[j].info.RSSI()
		}
		return rows[i].info.Name() < rows[j].info.Name()
	})
}

func printDevicesTable(rows []scanRow, withLastSeen bool) error {
	if len(rows) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := "NAME\tADDRESS\tRSSI\tBATTERY\tSERVICES"
	if withLastSeen {
		header += "\tLAST SEEN"
	}
	fmt.Fprintln(w, header)

	for _, row := range rows {
		dev := row.info
		name := dev.Name()
		if name == "" {
			name = "(unknown)"
		} else if len(name) > 20 {
			name = name[:17] + "..."
		}

		battery := ""
		if advertisesBattery(dev) {
			battery = "yes"
		}

		uuids := device.NormalizeUUIDs(dev.AdvertisedServices())
		for i, u := range uuids {
			uuids[i] = device.ShortenUUID(u)
		}
		services := strings.Join(uuids, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s", name, dev.Address(), dev.RSSI(), battery, services)
		if withLastSeen {
			fmt.Fprintf(w, "\t%s ago", time.Since(row.lastSeen).Truncate(time.Second))
		}
		fmt.Fprintln(w)
	}

	return w.Flush()
}

type scanDeviceJSON struct {
	Name           string   `json:"name,omitempty"`
	Address        string   `json:"address"`
	RSSI           int      `json:"rssi"`
	BatteryService bool     `json:"battery_service"`
	Services       []string `json:"services,omitempty"`
}

func printDevicesJSON(rows []scanRow) error {
	out := make([]scanDeviceJSON, 0, len(rows))
	for _, row := range rows {
		dev := row.info
		out = append(out, scanDeviceJSON{
			Name:           dev.Name(),
			Address:        dev.Address(),
			RSSI:           dev.RSSI(),
			BatteryService: advertisesBattery(dev),
			Services:       device.NormalizeUUIDs(dev.AdvertisedServices()),
		})
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func clearScreen() {
	fmt.Print("\033[2J\033[H")
}
