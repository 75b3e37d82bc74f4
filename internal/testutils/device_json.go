package testutils

import (
	"encoding/json"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// DeviceJSON mirrors the DeviceInfo surface for assertions.
type DeviceJSON struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	RSSI        int      `json:"rssi"`
	Connectable bool     `json:"connectable"`
	Services    []string `json:"services"`
}

// DeviceToJSON converts a device.DeviceInfo to a JSON string.
func DeviceToJSON(d device.DeviceInfo) string {
	jsonStruct := DeviceJSON{
		ID:          d.ID(),
		Name:        d.Name(),
		Address:     d.Address(),
		RSSI:        d.RSSI(),
		Connectable: d.IsConnectable(),
		Services:    d.AdvertisedServices(),
	}

	b, err := json.Marshal(jsonStruct)
	if err != nil {
		panic(err)
	}
	return string(b)
}
