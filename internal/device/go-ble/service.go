package goble

import (
	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// BLEService represents a GATT service and its characteristics. The
// characteristics keep discovery (handle) order: split keyboards expose one
// Battery Level instance per half under a single Battery Service, so
// same-UUID instances must stay distinct and ordered.
type BLEService struct {
	uuid            string
	knownName       string
	characteristics []*BLECharacteristic
}

func (s *BLEService) UUID() string {
	return s.uuid
}

func (s *BLEService) KnownName() string {
	return s.knownName
}

func (s *BLEService) GetCharacteristics() []device.Characteristic {
	result := make([]device.Characteristic, len(s.characteristics))
	for i, char := range s.characteristics {
		result[i] = char
	}
	return result
}
