package device

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NotFoundError reports a missing GATT resource on a connected peripheral.
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // [uuid] or [parentUUID, uuid]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parent := "service"
	if e.Resource == "descriptor" {
		parent = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parent, e.UUIDs[0])
}

// ConnectionState identifies the kind of connection-lifecycle failure.
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-lifecycle problem.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Connection-lifecycle sentinels.
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation and monitoring sentinels. The first three drive the battery
// monitor's retry and reporting behavior; match them with errors.Is.
var (
	// ErrDeviceNotFound: no advertisement matched the selector within
	// the scan window. Retried with backoff, never fatal.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrCharacteristicUnsupported: the connected peripheral exposes no
	// Battery Level characteristic. Reported once per session.
	ErrCharacteristicUnsupported = errors.New("battery characteristic unsupported")

	// ErrLinkLost: an established link dropped. Drives reconnection.
	ErrLinkLost = errors.New("link lost")

	// ErrBluetoothOff: the local adapter is powered off or absent. Fatal,
	// reported to the user instead of retried.
	ErrBluetoothOff = errors.New("bluetooth is off")

	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ScanningDevice represents a BLE adapter capable of scanning for advertisements
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Advertisement is one received BLE advertisement.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	TxPowerLevel() int
	Connectable() bool
	RSSI() int
	Addr() string
}

//nolint:revive // DeviceInfo name is intentional for clarity when used as a device.DeviceInfo
type DeviceInfo interface {
	ID() string
	Name() string
	Address() string
	RSSI() int
	IsConnectable() bool
	AdvertisedServices() []string
}

// Device is a peripheral the monitor can connect to.
type Device interface {
	DeviceInfo

	Connect(ctx context.Context, opts *ConnectOptions) error
	Disconnect() error
	IsConnected() bool
	Update(adv Advertisement)
	GetConnection() Connection
}

// Connection is an established GATT link.
//
// Context ends when the link drops, whatever the cause; the monitor's
// flow selects on it to detect loss without polling.
type Connection interface {
	Context() context.Context
	Services() []Service
	GetService(uuid string) (Service, error)
	GetCharacteristic(serviceUUID, charUUID string) (Characteristic, error)

	// FindCharacteristics returns every instance of charUUID under every
	// instance of serviceUUID, in handle order. Split keyboards expose
	// one Battery Level instance per half under a single Battery
	// Service, so instance identity matters here.
	FindCharacteristics(serviceUUID, charUUID string) []Characteristic
}

// Service represents a GATT service.
type Service interface {
	UUID() string
	KnownName() string
	GetCharacteristics() []Characteristic
}

// Characteristic represents a GATT characteristic instance. Handle
// disambiguates instances sharing a UUID.
type Characteristic interface {
	UUID() string
	KnownName() string
	Handle() uint16
	GetProperties() Properties
	GetDescriptors() []Descriptor
	Read(timeout time.Duration) ([]byte, error)

	// Subscribe enables notifications and returns a handle streaming
	// each value as it arrives. Fails with ErrUnsupported when the
	// characteristic advertises neither Notify nor Indicate.
	Subscribe() (Subscription, error)
}

// Descriptor represents a GATT descriptor. Value returns the bytes
// pre-read during discovery (nil if reading was skipped or failed).
type Descriptor interface {
	UUID() string
	KnownName() string
	Value() []byte
}

// Subscription is a cancellable notification stream. C is closed on
// Cancel and on link loss; values a slow consumer misses are dropped
// oldest-first rather than blocking the radio callback.
type Subscription interface {
	C() <-chan Value
	Cancel()
}

// Value is one notification payload.
type Value struct {
	Data []byte
	At   time.Time
}

// Property represents a single BLE characteristic property
type Property interface {
	Value() int
	KnownName() string
}

// Properties represent a collection of BLE characteristic properties
type Properties interface {
	Broadcast() Property
	Read() Property
	Write() Property
	WriteWithoutResponse() Property
	Notify() Property
	Indicate() Property
	AuthenticatedSignedWrites() Property
	ExtendedProperties() Property
}

// SupportsNotifications reports whether a characteristic advertises
// Notify or Indicate.
func SupportsNotifications(char Characteristic) bool {
	props := char.GetProperties()
	if props == nil {
		return false
	}
	notify := props.Notify() != nil && props.Notify().Value() != 0
	indicate := props.Indicate() != nil && props.Indicate().Value() != 0
	return notify || indicate
}

// ConnectOptions defines BLE connection options
type ConnectOptions struct {
	Address               string
	ConnectTimeout        time.Duration
	DescriptorReadTimeout time.Duration // Timeout for reading descriptor values (0 = skip reads)
}
