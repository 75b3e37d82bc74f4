package goble

import (
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/Cirius1792/split-keeb-battery/internal/bledb"
	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

const (
	// DefaultDescriptorReadTimeout is the default timeout for descriptor read operations.
	// Used when ConnectOptions.DescriptorReadTimeout is not explicitly set.
	DefaultDescriptorReadTimeout = 2 * time.Second
)

// BLEDescriptor implements the Descriptor interface for BLE GATT descriptors.
// Values are read once during discovery; Value returns those bytes. The
// Characteristic User Description descriptor (0x2901) is how split keyboards
// label their per-half battery instances, so discovery reads are on by default.
type BLEDescriptor struct {
	uuid      string
	knownName string
	value     []byte
}

// newDescriptor creates a BLEDescriptor and attempts to read its value with a timeout.
// If timeout is 0, descriptor reads are skipped entirely (fast path, no blocking).
// Reads are best-effort: on error or timeout the value stays nil.
func newDescriptor(d *ble.Descriptor, client ble.Client, timeout time.Duration, logger *logrus.Logger) *BLEDescriptor {
	rawUUID := d.UUID.String()

	desc := &BLEDescriptor{
		uuid:      device.NormalizeUUID(rawUUID),
		knownName: bledb.LookupDescriptor(rawUUID),
	}

	if timeout == 0 || client == nil {
		return desc
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		// Discovery may have cached the value already
		if len(d.Value) > 0 {
			resultCh <- readResult{data: d.Value}
			return
		}
		// On darwin go-ble leaves descriptor handles unset, so an
		// explicit read is not possible there
		if d.Handle == 0 {
			resultCh <- readResult{err: fmt.Errorf("descriptor handle not available")}
			return
		}
		data, err := client.ReadDescriptor(d)
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"descriptor_uuid": desc.uuid,
					"error":           result.err,
				}).Debug("Failed to read descriptor value")
			}
			return desc
		}
		desc.value = result.data
	case <-time.After(timeout):
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"descriptor_uuid": desc.uuid,
				"timeout":         timeout,
			}).Debug("Timeout reading descriptor value")
		}
	}

	return desc
}

// UUID returns the normalized descriptor UUID (lowercase, without dashes for 16-bit UUIDs).
func (d *BLEDescriptor) UUID() string { return d.uuid }

// KnownName returns the human-readable name for well-known descriptor UUIDs.
// Returns empty string for unknown descriptors.
func (d *BLEDescriptor) KnownName() string { return d.knownName }

// Value returns the raw descriptor bytes, nil when the read was skipped or failed.
func (d *BLEDescriptor) Value() []byte { return d.value }
