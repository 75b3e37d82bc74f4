package goble

import (
	"github.com/go-ble/ble"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// BLEProperty is a single characteristic property bit with its SIG name.
// It implements the Property interface.
type BLEProperty struct {
	value ble.Property
	name  string
}

// Value returns the bit flag value of the property.
func (p *BLEProperty) Value() int { return int(p.value) }

// KnownName returns the human-readable name of the property.
func (p *BLEProperty) KnownName() string { return p.name }

// BLEProperties is a view over a characteristic's property bit mask.
// It implements the Properties interface; absent properties return nil.
type BLEProperties struct {
	mask ble.Property
}

// NewProperties creates a Properties instance from ble.Property bit flags.
func NewProperties(p ble.Property) device.Properties {
	return &BLEProperties{mask: p}
}

func (p *BLEProperties) get(bit ble.Property, name string) device.Property {
	if p.mask&bit == 0 {
		return nil
	}
	return &BLEProperty{value: bit, name: name}
}

// Broadcast returns the Broadcast property if present, nil otherwise.
func (p *BLEProperties) Broadcast() device.Property { return p.get(ble.CharBroadcast, "Broadcast") }

// Read returns the Read property if present, nil otherwise.
func (p *BLEProperties) Read() device.Property { return p.get(ble.CharRead, "Read") }

// Write returns the Write property if present, nil otherwise.
func (p *BLEProperties) Write() device.Property { return p.get(ble.CharWrite, "Write") }

// WriteWithoutResponse returns the WriteWithoutResponse property if present, nil otherwise.
func (p *BLEProperties) WriteWithoutResponse() device.Property {
	return p.get(ble.CharWriteNR, "WriteWithoutResponse")
}

// Notify returns the Notify property if present, nil otherwise.
func (p *BLEProperties) Notify() device.Property { return p.get(ble.CharNotify, "Notify") }

// Indicate returns the Indicate property if present, nil otherwise.
func (p *BLEProperties) Indicate() device.Property { return p.get(ble.CharIndicate, "Indicate") }

// AuthenticatedSignedWrites returns the AuthenticatedSignedWrites property if present, nil otherwise.
func (p *BLEProperties) AuthenticatedSignedWrites() device.Property {
	return p.get(ble.CharSignedWrite, "AuthenticatedSignedWrites")
}

// ExtendedProperties returns the ExtendedProperties property if present, nil otherwise.
func (p *BLEProperties) ExtendedProperties() device.Property {
	return p.get(ble.CharExtended, "ExtendedProperties")
}
