package main

import (
	"errors"
	"fmt"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
)

// FormatUserError turns a command error into a one-line message with a hint
// where one exists. Never prints stack traces or wrapped error chains for
// the known failure modes.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, monitor.ErrNoDeviceSelected):
		return "no keyboard selected. Pass --device-name or --device-id, list devices in the config file, or run from a terminal to pick one interactively"
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or no adapter is available"
	case errors.Is(err, device.ErrDeviceNotFound):
		return fmt.Sprintf("%v. Is the keyboard switched on and in range?", err)
	case errors.Is(err, device.ErrCharacteristicUnsupported):
		return "the device does not expose a Battery Level characteristic"
	case errors.Is(err, device.ErrTimeout):
		return fmt.Sprintf("%v. The device may be out of range or already connected elsewhere", err)
	default:
		return err.Error()
	}
}
