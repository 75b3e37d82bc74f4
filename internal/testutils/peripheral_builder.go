package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Cirius1792/split-keeb-battery/internal/bledb"
	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/ringchan"
)

// CharacteristicConfig describes one characteristic of a fake peripheral.
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "read,notify"
	Value      []int  `json:"value,omitempty"`
	// Description fills the Characteristic User Description descriptor,
	// the way ZMK labels its battery instances ("LEFT", "RIGHT").
	Description string `json:"description,omitempty"`
}

// ServiceConfig describes one service of a fake peripheral.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig is the complete GATT profile of a fake peripheral.
type DeviceProfileConfig struct {
	Name     string          `json:"name,omitempty"`
	Address  string          `json:"address,omitempty"`
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds a FakePeripheral with full service,
// characteristic and descriptor support, either fluently or from JSON.
type PeripheralBuilder struct {
	profile DeviceProfileConfig
}

// NewPeripheralBuilder creates an empty peripheral builder.
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{}
}

// WithName sets the device name.
func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.profile.Name = name
	return b
}

// WithAddress sets the device address.
func (b *PeripheralBuilder) WithAddress(addr string) *PeripheralBuilder {
	b.profile.Address = addr
	return b
}

// WithService adds a service to the device profile.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	intVal := make([]int, len(value))
	for i, v := range value {
		intVal[i] = int(v)
	}
	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      intVal,
	})
	return b
}

// WithUserDescription sets the User Description descriptor on the last
// added characteristic.
func (b *PeripheralBuilder) WithUserDescription(label string) *PeripheralBuilder {
	if len(b.profile.Services) == 0 || len(b.profile.Services[len(b.profile.Services)-1].Characteristics) == 0 {
		panic("WithUserDescription: no characteristic added yet")
	}
	svc := &b.profile.Services[len(b.profile.Services)-1]
	svc.Characteristics[len(svc.Characteristics)-1].Description = label
	return b
}

// FromJSON fills the device profile from JSON. Panics on invalid JSON as
// this is intended for test data setup.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// Build creates the fake peripheral. Characteristic handles are assigned
// in declaration order, mirroring a real GATT table.
func (b *PeripheralBuilder) Build() *FakePeripheral {
	p := &FakePeripheral{
		name:    b.profile.Name,
		address: b.profile.Address,
	}
	if p.address == "" {
		p.address = "AA:BB:CC:DD:EE:FF"
	}

	var handle uint16 = 1
	for _, svcCfg := range b.profile.Services {
		svc := &FakeService{uuid: bledb.NormalizeUUID(svcCfg.UUID)}
		for _, charCfg := range svcCfg.Characteristics {
			value := make([]byte, len(charCfg.Value))
			for i, v := range charCfg.Value {
				value[i] = byte(v)
			}
			char := &FakeCharacteristic{
				uuid:   bledb.NormalizeUUID(charCfg.UUID),
				handle: handle,
				props:  parseProperties(charCfg.Properties),
				value:  value,
			}
			handle += 2
			if charCfg.Description != "" {
				char.descriptors = append(char.descriptors, &FakeDescriptor{
					uuid:  bledb.DescUserDescription,
					value: []byte(charCfg.Description),
				})
			}
			svc.chars = append(svc.chars, char)
		}
		p.services = append(p.services, svc)
	}
	return p
}

// FakePeripheral implements device.Device over an in-memory GATT table.
// Characteristic instances survive reconnects, like a real peripheral
// keeping its battery state across links.
type FakePeripheral struct {
	mu        sync.Mutex
	name      string
	address   string
	services  []*FakeService
	conn      *FakeConnection
	connected bool

	connectErrs []error // consumed one per Connect call
	connects    int
}

func (p *FakePeripheral) ID() string      { return p.address }
func (p *FakePeripheral) Name() string    { return p.name }
func (p *FakePeripheral) Address() string { return p.address }
func (p *FakePeripheral) RSSI() int       { return -50 }

func (p *FakePeripheral) IsConnectable() bool { return true }

func (p *FakePeripheral) AdvertisedServices() []string {
	uuids := make([]string, len(p.services))
	for i, svc := range p.services {
		uuids[i] = svc.uuid
	}
	return uuids
}

func (p *FakePeripheral) Update(device.Advertisement) {}

// FailNextConnect queues errors returned by the next Connect calls, in
// order, before connections start succeeding again.
func (p *FakePeripheral) FailNextConnect(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErrs = append(p.connectErrs, errs...)
}

// ConnectCount reports how many times Connect was called.
func (p *FakePeripheral) ConnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

func (p *FakePeripheral) Connect(_ context.Context, _ *device.ConnectOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	if len(p.connectErrs) > 0 {
		err := p.connectErrs[0]
		p.connectErrs = p.connectErrs[1:]
		return err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	services := make([]device.Service, len(p.services))
	for i, svc := range p.services {
		services[i] = svc
	}
	p.conn = &FakeConnection{
		ctx:      ctx,
		cancel:   cancel,
		services: services,
		chars:    p.allCharacteristics(),
	}
	p.connected = true
	return nil
}

func (p *FakePeripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.drop(nil)
	}
	p.connected = false
	return nil
}

func (p *FakePeripheral) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *FakePeripheral) GetConnection() device.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	return p.conn
}

// DropLink simulates the radio link going away: the connection context is
// cancelled and every active subscription stream is closed.
func (p *FakePeripheral) DropLink() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.drop(device.ErrLinkLost)
	}
	p.connected = false
}

// CharacteristicAt returns the idx-th instance of charUUID under
// serviceUUID, for pushing values or injecting read failures.
func (p *FakePeripheral) CharacteristicAt(serviceUUID, charUUID string, idx int) *FakeCharacteristic {
	serviceUUID = bledb.NormalizeUUID(serviceUUID)
	charUUID = bledb.NormalizeUUID(charUUID)
	n := 0
	for _, svc := range p.services {
		if svc.uuid != serviceUUID {
			continue
		}
		for _, char := range svc.chars {
			if char.uuid != charUUID {
				continue
			}
			if n == idx {
				return char
			}
			n++
		}
	}
	return nil
}

func (p *FakePeripheral) allCharacteristics() []*FakeCharacteristic {
	var chars []*FakeCharacteristic
	for _, svc := range p.services {
		chars = append(chars, svc.chars...)
	}
	return chars
}

// FakeConnection implements device.Connection.
type FakeConnection struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	services []device.Service
	chars    []*FakeCharacteristic
}

func (c *FakeConnection) Context() context.Context { return c.ctx }
func (c *FakeConnection) Services() []device.Service {
	return append([]device.Service(nil), c.services...)
}

func (c *FakeConnection) GetService(uuid string) (device.Service, error) {
	uuid = bledb.NormalizeUUID(uuid)
	for _, svc := range c.services {
		if svc.UUID() == uuid {
			return svc, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (c *FakeConnection) GetCharacteristic(serviceUUID, charUUID string) (device.Characteristic, error) {
	chars := c.FindCharacteristics(serviceUUID, charUUID)
	if len(chars) == 0 {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	}
	return chars[0], nil
}

func (c *FakeConnection) FindCharacteristics(serviceUUID, charUUID string) []device.Characteristic {
	serviceUUID = bledb.NormalizeUUID(serviceUUID)
	charUUID = bledb.NormalizeUUID(charUUID)
	var out []device.Characteristic
	for _, svc := range c.services {
		if svc.UUID() != serviceUUID {
			continue
		}
		for _, char := range svc.GetCharacteristics() {
			if char.UUID() == charUUID {
				out = append(out, char)
			}
		}
	}
	return out
}

func (c *FakeConnection) drop(cause error) {
	c.cancel(cause)
	for _, char := range c.chars {
		char.closeSubscriptions()
	}
}

// FakeService implements device.Service.
type FakeService struct {
	uuid  string
	chars []*FakeCharacteristic
}

func (s *FakeService) UUID() string      { return s.uuid }
func (s *FakeService) KnownName() string { return bledb.LookupService(s.uuid) }

func (s *FakeService) GetCharacteristics() []device.Characteristic {
	out := make([]device.Characteristic, len(s.chars))
	for i, c := range s.chars {
		out[i] = c
	}
	return out
}

// FakeCharacteristic implements device.Characteristic with pushable
// values. Safe for concurrent use by the code under test and the test.
type FakeCharacteristic struct {
	mu          sync.Mutex
	uuid        string
	handle      uint16
	props       *fakeProperties
	descriptors []device.Descriptor
	value       []byte
	readErr     error
	subs        []*ringchan.Ring[device.Value]
	reads       int
}

func (f *FakeCharacteristic) UUID() string      { return f.uuid }
func (f *FakeCharacteristic) KnownName() string { return bledb.LookupCharacteristic(f.uuid) }
func (f *FakeCharacteristic) Handle() uint16    { return f.handle }

func (f *FakeCharacteristic) GetProperties() device.Properties { return f.props }

func (f *FakeCharacteristic) GetDescriptors() []device.Descriptor {
	return append([]device.Descriptor(nil), f.descriptors...)
}

func (f *FakeCharacteristic) Read(time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return append([]byte(nil), f.value...), nil
}

func (f *FakeCharacteristic) Subscribe() (device.Subscription, error) {
	if !f.props.notify && !f.props.indicate {
		return nil, fmt.Errorf("%w: characteristic %s supports neither notifications nor indications", device.ErrUnsupported, f.uuid)
	}
	ring := ringchan.New[device.Value](8)
	f.mu.Lock()
	f.subs = append(f.subs, ring)
	f.mu.Unlock()
	return &fakeSubscription{char: f, ring: ring}, nil
}

// Push sets a new value and delivers it to every active subscription.
// Reports whether at least one subscriber received it.
func (f *FakeCharacteristic) Push(data []byte) bool {
	f.mu.Lock()
	f.value = append([]byte(nil), data...)
	subs := append([]*ringchan.Ring[device.Value](nil), f.subs...)
	f.mu.Unlock()

	delivered := false
	for _, ring := range subs {
		if ring.Send(device.Value{Data: append([]byte(nil), data...), At: time.Now()}) {
			delivered = true
		}
	}
	return delivered
}

// FailReads makes subsequent Reads return err. Pass nil to heal.
func (f *FakeCharacteristic) FailReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

// ReadCount reports how many times Read was called.
func (f *FakeCharacteristic) ReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *FakeCharacteristic) closeSubscriptions() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()
	for _, ring := range subs {
		ring.Close()
	}
}

func (f *FakeCharacteristic) unsubscribe(ring *ringchan.Ring[device.Value]) {
	f.mu.Lock()
	for i, s := range f.subs {
		if s == ring {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
	ring.Close()
}

type fakeSubscription struct {
	char *FakeCharacteristic
	ring *ringchan.Ring[device.Value]
	once sync.Once
}

func (s *fakeSubscription) C() <-chan device.Value { return s.ring.C() }

func (s *fakeSubscription) Cancel() {
	s.once.Do(func() { s.char.unsubscribe(s.ring) })
}

// FakeDescriptor implements device.Descriptor.
type FakeDescriptor struct {
	uuid  string
	value []byte
}

func (d *FakeDescriptor) UUID() string      { return d.uuid }
func (d *FakeDescriptor) KnownName() string { return bledb.LookupDescriptor(d.uuid) }
func (d *FakeDescriptor) Value() []byte     { return append([]byte(nil), d.value...) }

type fakeProperty struct {
	value int
	name  string
}

func (p *fakeProperty) Value() int        { return p.value }
func (p *fakeProperty) KnownName() string { return p.name }

type fakeProperties struct {
	broadcast, read, write, writeNR       bool
	notify, indicate, signedWrite, extend bool
}

// parseProperties converts a comma-separated property list to flags.
// Empty input defaults to "read,notify".
func parseProperties(props string) *fakeProperties {
	if props == "" {
		return &fakeProperties{read: true, notify: true}
	}
	p := &fakeProperties{}
	for _, tok := range strings.Split(props, ",") {
		switch strings.TrimSpace(strings.ToLower(tok)) {
		case "broadcast":
			p.broadcast = true
		case "read":
			p.read = true
		case "write":
			p.write = true
		case "write-without-response":
			p.writeNR = true
		case "notify":
			p.notify = true
		case "indicate":
			p.indicate = true
		case "signed-write":
			p.signedWrite = true
		case "extended":
			p.extend = true
		}
	}
	return p
}

func (p *fakeProperties) prop(set bool, value int, name string) device.Property {
	if !set {
		return nil
	}
	return &fakeProperty{value: value, name: name}
}

func (p *fakeProperties) Broadcast() device.Property { return p.prop(p.broadcast, 0x01, "Broadcast") }
func (p *fakeProperties) Read() device.Property      { return p.prop(p.read, 0x02, "Read") }
func (p *fakeProperties) WriteWithoutResponse() device.Property {
	return p.prop(p.writeNR, 0x04, "WriteWithoutResponse")
}
func (p *fakeProperties) Write() device.Property  { return p.prop(p.write, 0x08, "Write") }
func (p *fakeProperties) Notify() device.Property { return p.prop(p.notify, 0x10, "Notify") }
func (p *fakeProperties) Indicate() device.Property {
	return p.prop(p.indicate, 0x20, "Indicate")
}
func (p *fakeProperties) AuthenticatedSignedWrites() device.Property {
	return p.prop(p.signedWrite, 0x40, "AuthenticatedSignedWrites")
}
func (p *fakeProperties) ExtendedProperties() device.Property {
	return p.prop(p.extend, 0x80, "ExtendedProperties")
}
