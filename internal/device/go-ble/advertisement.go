package goble

import (
	"github.com/go-ble/ble"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// bleAdvertisement adapts a raw ble.Advertisement to device.Advertisement.
// Service UUIDs are passed through verbatim; normalization happens where
// the values are compared or displayed.
type bleAdvertisement struct {
	adv ble.Advertisement
}

// WrapAdvertisement adapts one received advertisement for the scanner.
func WrapAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &bleAdvertisement{adv: adv}
}

func (a *bleAdvertisement) Addr() string      { return a.adv.Addr().String() }
func (a *bleAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *bleAdvertisement) RSSI() int         { return a.adv.RSSI() }
func (a *bleAdvertisement) Connectable() bool { return a.adv.Connectable() }
func (a *bleAdvertisement) TxPowerLevel() int { return int(a.adv.TxPowerLevel()) }

func (a *bleAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }

func (a *bleAdvertisement) Services() []string {
	svcs := a.adv.Services()
	out := make([]string, len(svcs))
	for i, svc := range svcs {
		out[i] = svc.String()
	}
	return out
}
