package goble

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/Cirius1792/split-keeb-battery/internal/bledb"
	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/ringchan"
)

const (
	// DefaultReadTimeout is the default timeout for characteristic read operations.
	// This prevents indefinite blocking if a device becomes unresponsive during a read.
	DefaultReadTimeout = 5 * time.Second

	// subscriptionBuffer caps how many unread notification values a slow
	// consumer can accumulate before the oldest are dropped. Battery level
	// notifications are rare, so a small ring is plenty.
	subscriptionBuffer = 8
)

// BLECharacteristic implements the Characteristic interface for one GATT
// characteristic instance. Split keyboards expose one Battery Level instance
// per half under the same UUID; Handle keeps the instances distinct.
type BLECharacteristic struct {
	uuid        string
	knownName   string
	properties  device.Properties
	descriptors []*BLEDescriptor
	bleChar     *ble.Characteristic
	connection  *BLEConnection // parent connection, used for reads and subscriptions
}

func newCharacteristic(c *ble.Characteristic, conn *BLEConnection, descTimeout time.Duration, logger *logrus.Logger) *BLECharacteristic {
	rawUUID := c.UUID.String()

	char := &BLECharacteristic{
		uuid:       device.NormalizeUUID(rawUUID),
		knownName:  bledb.LookupCharacteristic(rawUUID),
		properties: NewProperties(c.Property),
		bleChar:    c,
		connection: conn,
	}
	for _, d := range c.Descriptors {
		char.descriptors = append(char.descriptors, newDescriptor(d, conn.client, descTimeout, logger))
	}
	return char
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) KnownName() string {
	return c.knownName
}

// Handle returns the attribute value handle. It disambiguates instances
// sharing a UUID; 0 when the platform does not expose handles.
func (c *BLECharacteristic) Handle() uint16 {
	return c.bleChar.ValueHandle
}

func (c *BLECharacteristic) GetProperties() device.Properties {
	return c.properties
}

func (c *BLECharacteristic) GetDescriptors() []device.Descriptor {
	result := make([]device.Descriptor, len(c.descriptors))
	for i, d := range c.descriptors {
		result[i] = d
	}
	return result
}

// Read reads the current value of the characteristic from the device.
// A timeout of 0 falls back to DefaultReadTimeout. The read fails early
// with ErrLinkLost when the connection drops mid-flight.
func (c *BLECharacteristic) Read(timeout time.Duration) ([]byte, error) {
	client, err := c.connection.clientForIO()
	if err != nil {
		return nil, fmt.Errorf("reading characteristic %s: %w", c.uuid, err)
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		data, err := client.ReadCharacteristic(c.bleChar)
		resultCh <- readResult{data: data, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("failed to read characteristic %s: %w", c.uuid, NormalizeError(result.err))
		}
		return result.data, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w reading characteristic %s after %v", device.ErrTimeout, c.uuid, timeout)
	case <-c.connection.done():
		return nil, fmt.Errorf("%w: reading characteristic %s", device.ErrLinkLost, c.uuid)
	}
}

// Subscribe enables notifications (indications when the characteristic only
// supports those) and returns a stream of values. The stream is closed on
// Cancel and when the link drops; a slow consumer loses oldest values
// instead of blocking the radio callback.
func (c *BLECharacteristic) Subscribe() (device.Subscription, error) {
	client, err := c.connection.clientForIO()
	if err != nil {
		return nil, fmt.Errorf("subscribing to characteristic %s: %w", c.uuid, err)
	}

	indicate := false
	switch {
	case c.properties.Notify() != nil:
	case c.properties.Indicate() != nil:
		indicate = true
	default:
		return nil, fmt.Errorf("%w: characteristic %s supports neither notify nor indicate", device.ErrUnsupported, c.uuid)
	}

	sub := &bleSubscription{
		char:     c,
		indicate: indicate,
		ring:     ringchan.New[device.Value](subscriptionBuffer),
	}

	handler := func(data []byte) {
		// go-ble reuses the callback buffer, copy before handing off
		buf := make([]byte, len(data))
		copy(buf, data)
		sub.ring.Send(device.Value{Data: buf, At: time.Now()})
	}

	if err := client.Subscribe(c.bleChar, indicate, handler); err != nil {
		sub.ring.Close()
		return nil, fmt.Errorf("failed to subscribe to characteristic %s: %w", c.uuid, NormalizeError(err))
	}

	c.connection.trackSubscription(sub)
	return sub, nil
}

// bleSubscription is a live notification stream over one characteristic.
type bleSubscription struct {
	char     *BLECharacteristic
	indicate bool
	ring     *ringchan.Ring[device.Value]
	once     sync.Once
}

func (s *bleSubscription) C() <-chan device.Value {
	return s.ring.C()
}

// Cancel stops notifications and closes the stream. Safe to call multiple
// times and after the link dropped; the unsubscribe itself is best-effort
// since the peripheral may already be gone.
func (s *bleSubscription) Cancel() {
	s.once.Do(func() {
		s.char.connection.untrackSubscription(s)
		if client, err := s.char.connection.clientForIO(); err == nil {
			_ = client.Unsubscribe(s.char.bleChar, s.indicate)
		}
		s.ring.Close()
	})
}

// closeStream closes the stream without touching the client. Connection
// teardown uses it once the link is already gone.
func (s *bleSubscription) closeStream() {
	s.once.Do(func() {
		s.ring.Close()
	})
}
