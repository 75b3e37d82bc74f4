package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/Cirius1792/split-keeb-battery/internal/bledb"
	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/groutine"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as device.DeviceFactory
var DeviceFactory = func() (ble.Device, error) {
	return defaultDevice()
}

// BLEConnection represents a live BLE connection. Each Connect builds a fresh
// connection; after the link drops the value is not reused.
type BLEConnection struct {
	client      ble.Client
	logger      *logrus.Logger
	connMutex   sync.RWMutex
	isConnected bool

	// services in discovery order. Lookups scan linearly; profiles are
	// small and same-UUID characteristic instances must stay distinct.
	services []*BLEService

	subMu sync.Mutex
	subs  []*bleSubscription

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewBLEConnection(logger *logrus.Logger) *BLEConnection {
	return &BLEConnection{
		ctx:    context.Background(),
		logger: logger,
	}
}

// Connect establishes a BLE connection and discovers the GATT profile.
// The connection context derives from ctx and ends when the link drops,
// whichever side initiates it.
func (c *BLEConnection) Connect(ctx context.Context, address string, opts *device.ConnectOptions) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if strings.TrimSpace(address) == "" {
		c.logger.Error("Connection attempt with empty address")
		return fmt.Errorf("device address is empty")
	}

	if c.isConnectedInternal() {
		c.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	descTimeout := opts.DescriptorReadTimeout
	if descTimeout == 0 {
		descTimeout = DefaultDescriptorReadTimeout
	}

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	// Create a BLE device using the factory (allows for mocking in tests)
	dev, err := DeviceFactory()
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	dialCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := ble.Dial(dialCtx, ble.NewAddr(address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	c.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	bleProfile, err := client.DiscoverProfile(true)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	// Client must be set before characteristics are built: descriptor
	// pre-reads during discovery go through it.
	c.client = client

	// Populate services and characteristics in discovery order. Instances
	// sharing a UUID are all kept; a ZMK split keyboard exposes one Battery
	// Level characteristic per half under a single Battery Service.
	c.services = nil
	totalChars := 0
	for _, bleSvc := range bleProfile.Services {
		svcRawUUID := bleSvc.UUID.String()
		svc := &BLEService{
			uuid:      device.NormalizeUUID(svcRawUUID),
			knownName: bledb.LookupService(svcRawUUID),
		}
		for _, bleChar := range bleSvc.Characteristics {
			c.logger.WithFields(logrus.Fields{
				"service_uuid": svcRawUUID,
				"char_uuid":    bleChar.UUID.String(),
				"value_handle": bleChar.ValueHandle,
			}).Debug("Found characteristic")
			svc.characteristics = append(svc.characteristics, newCharacteristic(bleChar, c, descTimeout, c.logger))
		}
		totalChars += len(svc.characteristics)
		c.services = append(c.services, svc)
	}

	c.isConnected = true
	c.ctx, c.cancel = context.WithCancelCause(ctx)

	// Watch the client's disconnect signal so link loss ends the
	// connection context even when no operation is in flight.
	connCtx := c.ctx
	cancel := c.cancel
	groutine.Go(context.Background(), "ble-link-monitor", func(context.Context) {
		select {
		case <-client.Disconnected():
			c.logger.WithField("address", address).Warn("BLE stack reported link down")
			cancel(device.ErrLinkLost)
			c.linkLost()
		case <-connCtx.Done():
		}
	})

	c.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(c.services),
		"characteristics": totalChars,
	}).Info("BLE device connected successfully")
	return nil
}

// Disconnect tears the link down: subscriptions are cancelled, the
// connection context ends, then the client connection is closed.
func (c *BLEConnection) Disconnect() error {
	c.connMutex.Lock()
	if c.client == nil || !c.isConnected {
		c.connMutex.Unlock()
		if c.logger != nil {
			c.logger.Debug("Disconnect called but already disconnected")
		}
		return nil
	}

	client := c.client
	cancel := c.cancel
	c.client = nil
	c.cancel = nil
	c.isConnected = false
	c.connMutex.Unlock()

	if c.logger != nil {
		c.logger.Debug("Disconnecting BLE device...")
	}

	// Unsubscribe from remote notifications before dropping the link, then
	// close the local streams.
	for _, sub := range c.takeSubscriptions() {
		if err := NormalizeError(client.Unsubscribe(sub.char.bleChar, sub.indicate)); err != nil && c.logger != nil {
			c.logger.WithFields(logrus.Fields{
				"char_uuid": sub.char.uuid,
				"error":     err,
			}).Warn("Failed to unsubscribe from characteristic during disconnect")
		}
		sub.closeStream()
	}

	if cancel != nil {
		cancel(nil)
	}

	disconnectErr := NormalizeError(client.CancelConnection())
	if c.logger != nil {
		if disconnectErr != nil {
			c.logger.WithField("error", disconnectErr).Warn("BLE device disconnected with errors")
		} else {
			c.logger.Info("BLE device disconnected successfully")
		}
	}
	return disconnectErr
}

// linkLost marks the connection dead and closes subscription streams after
// the BLE stack reported the link down. The client is gone, so no remote
// unsubscribe is attempted.
func (c *BLEConnection) linkLost() {
	c.connMutex.Lock()
	c.isConnected = false
	c.connMutex.Unlock()

	for _, sub := range c.takeSubscriptions() {
		sub.closeStream()
	}
}

// isConnectedInternal checks the connection status without acquiring locks.
// Should only be called when the caller already holds connMutex.
func (c *BLEConnection) isConnectedInternal() bool {
	return c.client != nil && c.isConnected
}

func (c *BLEConnection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnectedInternal()
}

// Context ends when the link drops, whatever the cause. Before the first
// Connect it is context.Background.
func (c *BLEConnection) Context() context.Context {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.ctx
}

// done returns the connection context's done channel, nil (blocking
// forever in a select) when the connection was never established.
func (c *BLEConnection) done() <-chan struct{} {
	return c.Context().Done()
}

// clientForIO returns the live client for read/subscribe operations.
func (c *BLEConnection) clientForIO() (ble.Client, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if !c.isConnectedInternal() {
		return nil, device.ErrNotConnected
	}
	return c.client, nil
}

func (c *BLEConnection) trackSubscription(s *bleSubscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = append(c.subs, s)
}

func (c *BLEConnection) untrackSubscription(s *bleSubscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for i, cur := range c.subs {
		if cur == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
}

// takeSubscriptions removes and returns all tracked subscriptions.
func (c *BLEConnection) takeSubscriptions() []*bleSubscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	subs := c.subs
	c.subs = nil
	return subs
}

// Services returns the discovered services in discovery order.
func (c *BLEConnection) Services() []device.Service {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	result := make([]device.Service, len(c.services))
	for i, svc := range c.services {
		result[i] = svc
	}
	return result
}

// GetService retrieves the first service with the given UUID.
// The UUID is normalized for consistent lookup (lowercase, no dashes).
// Returns a NotFoundError if the service is not found.
func (c *BLEConnection) GetService(uuid string) (device.Service, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	normalized := device.NormalizeUUID(uuid)
	for _, svc := range c.services {
		if svc.uuid == normalized {
			return svc, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

// GetCharacteristic retrieves the first characteristic matching the service
// and characteristic UUIDs. Both are normalized for consistent lookup.
// Returns a NotFoundError if either is not found.
func (c *BLEConnection) GetCharacteristic(service, uuid string) (device.Characteristic, error) {
	chars := c.FindCharacteristics(service, uuid)
	if len(chars) == 0 {
		// Distinguish a missing service from a missing characteristic
		if _, err := c.GetService(service); err != nil {
			return nil, err
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return chars[0], nil
}

// FindCharacteristics returns every characteristic instance matching the
// service and characteristic UUIDs, in handle order. An empty slice means
// no match.
func (c *BLEConnection) FindCharacteristics(service, uuid string) []device.Characteristic {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	normalizedSvc := device.NormalizeUUID(service)
	normalizedChar := device.NormalizeUUID(uuid)

	var result []device.Characteristic
	for _, svc := range c.services {
		if svc.uuid != normalizedSvc {
			continue
		}
		for _, char := range svc.characteristics {
			if char.uuid == normalizedChar {
				result = append(result, char)
			}
		}
	}
	return result
}
