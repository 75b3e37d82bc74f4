// Package devicefactory is the seam between the scanner and the host
// Bluetooth adapter. Production code gets a real HCI-backed adapter;
// tests swap DeviceFactory for a fake that replays advertisements.
package devicefactory

import (
	"context"

	ble "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
	goble "github.com/Cirius1792/split-keeb-battery/internal/device/go-ble"
)

// DeviceFactory opens the host adapter for scanning. Package variable so
// tests can substitute a fake adapter without touching the scanner.
var DeviceFactory = func() (device.ScanningDevice, error) {
	dev, err := goble.DeviceFactory()
	if err != nil {
		return nil, err
	}
	return &adapterScanner{dev: dev}, nil
}

// NewDeviceFromAdvertisement builds a connectable device from a discovered
// advertisement. All device construction goes through here: keyboards are
// found by scanning, never dialed blind by address.
func NewDeviceFromAdvertisement(adv device.Advertisement, logger *logrus.Logger) device.Device {
	return goble.NewBLEDeviceFromAdvertisement(adv, logger)
}

// adapterScanner adapts the raw ble.Device scan callback to the
// device.Advertisement handler the scanner consumes.
type adapterScanner struct {
	dev ble.Device
}

func (s *adapterScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	return s.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(goble.WrapAdvertisement(adv))
	})
}
