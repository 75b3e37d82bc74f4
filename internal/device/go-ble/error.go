package goble

import (
	"fmt"
	"strings"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// errClasses maps fragments of go-ble error text to the sentinel each one
// indicates. Matching on message text is unavoidable: the library returns
// plain errors whose wording differs between the hci and darwin backends.
var errClasses = []struct {
	fragment string
	sentinel error
}{
	{"is bluetooth turned on", device.ErrBluetoothOff},
	{"bluetooth is turned off", device.ErrBluetoothOff},
	{"can't init hci", device.ErrBluetoothOff},
	{"central manager has invalid state", device.ErrBluetoothOff},
	{"device not connected", device.ErrNotConnected},
	{"disconnected", device.ErrNotConnected},
	{"connection closed", device.ErrLinkLost},
	{"device already connected", device.ErrAlreadyConnected},
	{"connection is not initialized", device.ErrNotInitialized},
}

// NormalizeError wraps raw go-ble errors with the matching device sentinel
// so callers can test them with errors.Is. Unrecognized errors pass through
// unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, c := range errClasses {
		if strings.Contains(msg, c.fragment) {
			return fmt.Errorf("%w: %v", c.sentinel, err)
		}
	}
	return err
}
