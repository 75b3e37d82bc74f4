package goble

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/Cirius1792/split-keeb-battery/internal/bledb"
	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// BLEDevice implements the Device interface for BLE peripherals.
type BLEDevice struct {
	id                 string
	name               string
	address            string
	rssi               int
	connectable        bool
	lastSeen           time.Time
	advertisedServices []string
	manufData          []byte
	connection         *BLEConnection
	logger             *logrus.Logger
	mu                 sync.RWMutex
}

// NewBLEDevice creates a BLEDevice for the given address.
func NewBLEDevice(address string, logger *logrus.Logger) *BLEDevice {
	if logger == nil {
		logger = logrus.New()
	}

	return &BLEDevice{
		id:         address,
		address:    address,
		lastSeen:   time.Now(),
		connection: NewBLEConnection(logger),
		logger:     logger,
	}
}

// NewBLEDeviceFromAdvertisement creates a BLEDevice from a received advertisement.
func NewBLEDeviceFromAdvertisement(adv device.Advertisement, logger *logrus.Logger) *BLEDevice {
	dev := NewBLEDevice(adv.Addr(), logger)

	dev.name = adv.LocalName()
	dev.rssi = adv.RSSI()
	dev.connectable = adv.Connectable()
	dev.manufData = adv.ManufacturerData()

	for _, uuid := range adv.Services() {
		dev.advertisedServices = append(dev.advertisedServices, device.NormalizeUUID(uuid))
	}
	sort.Strings(dev.advertisedServices)

	// Some peripherals embed their name in manufacturer data instead of
	// the local name field
	if dev.name == "" {
		if extracted := extractNameFromManufacturerData(adv.ManufacturerData()); extracted != "" {
			dev.name = extracted
		}
	}

	return dev
}

func (d *BLEDevice) ID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.id
}

// Name returns the best known display name, falling back to the address
// when the peripheral never advertised one.
func (d *BLEDevice) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.name == "" {
		return d.address
	}
	return d.name
}

func (d *BLEDevice) Address() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.address
}

func (d *BLEDevice) RSSI() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rssi
}

func (d *BLEDevice) IsConnectable() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectable
}

func (d *BLEDevice) AdvertisedServices() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.advertisedServices
}

// Connect establishes a fresh BLE connection and discovers the GATT
// profile. A device that lost its link is reconnected by calling Connect
// again; the previous connection is discarded.
func (d *BLEDevice) Connect(ctx context.Context, opts *device.ConnectOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if opts == nil {
		opts = &device.ConnectOptions{
			ConnectTimeout: 30 * time.Second,
		}
	}

	conn := NewBLEConnection(d.logger)
	if err := conn.Connect(ctx, d.address, opts); err != nil {
		return err
	}
	d.connection = conn

	// Resolve the display name from GAP Device Name (0x2A00) when the
	// advertisement carried none
	if d.name == "" {
		if char, err := conn.GetCharacteristic(bledb.ServiceGenericAccess, bledb.CharDeviceName); err == nil {
			if data, err := char.Read(DefaultDescriptorReadTimeout); err == nil && len(data) > 0 {
				name := strings.TrimSpace(strings.TrimRight(string(data), "\x00"))
				if isValidDeviceName(name) {
					d.name = name
					d.logger.WithFields(logrus.Fields{
						"address": d.address,
						"name":    name,
					}).Debug("Resolved device name from GAP")
				}
			}
		}
	}

	return nil
}

// Disconnect closes the current connection. Safe to call when already
// disconnected.
func (d *BLEDevice) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connection == nil {
		return nil
	}
	return d.connection.Disconnect()
}

// IsConnected returns connection status
func (d *BLEDevice) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connection != nil && d.connection.IsConnected()
}

// Update refreshes device information from a new advertisement.
func (d *BLEDevice) Update(adv device.Advertisement) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rssi = adv.RSSI()
	d.lastSeen = time.Now()

	if name := adv.LocalName(); name != "" {
		d.name = name
	} else if d.name == "" {
		if extracted := extractNameFromManufacturerData(adv.ManufacturerData()); extracted != "" {
			d.name = extracted
		}
	}

	if manufData := adv.ManufacturerData(); len(manufData) > 0 {
		d.manufData = manufData
	}

	needsSort := false
	for _, svc := range adv.Services() {
		normalized := device.NormalizeUUID(svc)
		if !d.hasAdvertisedService(normalized) {
			d.advertisedServices = append(d.advertisedServices, normalized)
			needsSort = true
		}
	}
	if needsSort {
		sort.Strings(d.advertisedServices)
	}
}

// GetConnection returns the current connection. It is never nil; before the
// first Connect it reports not connected.
func (d *BLEDevice) GetConnection() device.Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connection
}

func (d *BLEDevice) hasAdvertisedService(uuid string) bool {
	for _, s := range d.advertisedServices {
		if strings.EqualFold(s, uuid) {
			return true
		}
	}
	return false
}

// extractNameFromManufacturerData looks for a readable ASCII run that many
// vendors embed in manufacturer data in place of a local name.
func extractNameFromManufacturerData(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	for i := 0; i < len(data)-3; i++ {
		if !isReadableASCII(data[i]) {
			continue
		}
		var nameBytes []byte
		for j := i; j < len(data) && j < i+32; j++ {
			if !isReadableASCII(data[j]) {
				break
			}
			nameBytes = append(nameBytes, data[j])
		}
		name := strings.TrimSpace(string(nameBytes))
		if len(name) >= 3 && isValidDeviceName(name) {
			return name
		}
	}

	return ""
}

// isReadableASCII checks if a byte represents a readable ASCII character
func isReadableASCII(b byte) bool {
	return b >= 32 && b <= 126 && unicode.IsPrint(rune(b))
}

// isValidDeviceName checks if a string looks like a plausible device name
func isValidDeviceName(name string) bool {
	if len(name) < 3 || len(name) > 32 {
		return false
	}

	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
