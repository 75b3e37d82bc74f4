package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/Cirius1792/split-keeb-battery/internal/bledb"
	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
	"github.com/Cirius1792/split-keeb-battery/pkg/config"
	"github.com/Cirius1792/split-keeb-battery/scanner"
)

// maxPickable matches the number of keyboards the monitor tracks.
const maxPickable = 2

// pickDevices scans for nearby peripherals and asks the user which ones to
// track. Requires an interactive terminal; a service or piped run gets
// ErrNoDeviceSelected and should pin devices via flags or config instead.
func pickDevices(ctx context.Context, cfg *config.Config, logger *logrus.Logger) ([]device.Selector, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, monitor.ErrNoDeviceSelected
	}

	s, err := scanner.NewScanner(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	progress := NewCountdownProgressPrinter("Scanning for keyboards", "Scanning", cfg.Reconnect.ScanTimeout)
	progress.Start()
	found, err := s.Scan(ctx, &scanner.ScanOptions{
		Duration:        cfg.Reconnect.ScanTimeout,
		AllowDuplicates: true,
	}, progress.Callback())
	progress.Stop()
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	candidates := sortCandidates(found)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no devices discovered", monitor.ErrNoDeviceSelected)
	}

	printCandidates(candidates)

	fmt.Printf("Select 1-%d devices (comma separated, Enter to cancel): ", maxPickable)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	indices, err := parseSelection(line, len(candidates), maxPickable)
	if err != nil {
		return nil, err
	}

	selectors := make([]device.Selector, 0, len(indices))
	for _, idx := range indices {
		dev := candidates[idx]
		selectors = append(selectors, device.Selector{Name: dev.Name(), ID: dev.Address()})
	}
	return selectors, nil
}

// sortCandidates drops unconnectable peripherals and orders the rest by
// signal strength, strongest first. A keyboard on the desk sorts to the top.
func sortCandidates(found map[string]device.DeviceInfo) []device.DeviceInfo {
	candidates := make([]device.DeviceInfo, 0, len(found))
	for _, dev := range found {
		if !dev.IsConnectable() {
			continue
		}
		candidates = append(candidates, dev)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RSSI() != candidates[j].RSSI() {
			return candidates[i].RSSI() > candidates[j].RSSI()
		}
		return candidates[i].Name() < candidates[j].Name()
	})
	return candidates
}

func printCandidates(candidates []device.DeviceInfo) {
	color.New(color.Bold).Printf("   #  %-24s  %-18s  %-8s  %s\n", "NAME", "ADDRESS", "RSSI", "BATTERY")
	for i, dev := range candidates {
		name := dev.Name()
		if name == "" {
			name = color.New(color.Faint).Sprint("(unknown)")
		} else if len(name) > 24 {
			name = name[:21] + "..."
		}
		battery := ""
		if advertisesBattery(dev) {
			battery = color.GreenString("yes")
		}
		fmt.Printf("  %s  %-24s  %-18s  %4d dBm  %s\n",
			color.CyanString("%2d", i+1), name, dev.Address(), dev.RSSI(), battery)
	}
}

// advertisesBattery reports whether the advertisement carried the Battery
// Service UUID. Plenty of keyboards advertise only the HID service, so a
// missing marker does not mean no battery data.
func advertisesBattery(dev device.DeviceInfo) bool {
	for _, uuid := range device.NormalizeUUIDs(dev.AdvertisedServices()) {
		if uuid == bledb.ServiceBattery {
			return true
		}
	}
	return false
}

// parseSelection turns "1" or "2,3" into zero-based indices. Empty input
// means the user cancelled.
func parseSelection(input string, available, maxPick int) ([]int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, monitor.ErrNoDeviceSelected
	}

	parts := strings.Split(input, ",")
	if len(parts) > maxPick {
		return nil, fmt.Errorf("at most %d devices can be tracked, got %d", maxPick, len(parts))
	}

	indices := make([]int, 0, len(parts))
	seen := make(map[int]struct{}, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q: expected a number from the list", strings.TrimSpace(part))
		}
		if n < 1 || n > available {
			return nil, fmt.Errorf("selection %d is out of range 1-%d", n, available)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("device %d selected twice", n)
		}
		seen[n] = struct{}{}
		indices = append(indices, n-1)
	}
	return indices, nil
}
