package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// fakeAdvertisement is a plain value implementing device.Advertisement.
type fakeAdvertisement struct {
	name        string
	address     string
	rssi        int
	services    []string
	manufData   []byte
	txPower     int
	connectable bool
}

func (a *fakeAdvertisement) LocalName() string        { return a.name }
func (a *fakeAdvertisement) ManufacturerData() []byte { return a.manufData }
func (a *fakeAdvertisement) Services() []string       { return a.services }
func (a *fakeAdvertisement) TxPowerLevel() int        { return a.txPower }
func (a *fakeAdvertisement) Connectable() bool        { return a.connectable }
func (a *fakeAdvertisement) RSSI() int                { return a.rssi }
func (a *fakeAdvertisement) Addr() string             { return a.address }

// AdvertisementBuilder builds advertisements for tests with a fluent API.
type AdvertisementBuilder struct {
	adv fakeAdvertisement
}

// NewAdvertisementBuilder creates a builder with connectable=true and the
// BLE "power unavailable" TxPower default.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		adv: fakeAdvertisement{
			connectable: true,
			txPower:     127,
		},
	}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds advertised service UUIDs, short or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.services = append(b.adv.services, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

// WithTxPower sets the transmission power level.
func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.adv.txPower = power
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var data struct {
		Name             *string  `json:"name"`
		Address          *string  `json:"address"`
		RSSI             *int     `json:"rssi"`
		Services         []string `json:"services"`
		ManufacturerData []byte   `json:"manufacturerData"`
		TxPower          *int     `json:"txPower"`
		Connectable      *bool    `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: %v", err))
	}

	if data.Name != nil {
		b.adv.name = *data.Name
	}
	if data.Address != nil {
		b.adv.address = *data.Address
	}
	if data.RSSI != nil {
		b.adv.rssi = *data.RSSI
	}
	if data.Services != nil {
		b.adv.services = data.Services
	}
	if data.ManufacturerData != nil {
		b.adv.manufData = data.ManufacturerData
	}
	if data.TxPower != nil {
		b.adv.txPower = *data.TxPower
	}
	if data.Connectable != nil {
		b.adv.connectable = *data.Connectable
	}
	return b
}

// Build returns the advertisement. Each call returns an independent copy,
// so a builder can stamp out variations.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	adv.services = append([]string(nil), b.adv.services...)
	adv.manufData = append([]byte(nil), b.adv.manufData...)
	return &adv
}
