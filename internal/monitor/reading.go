package monitor

import (
	"fmt"
	"time"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// LevelUnknown marks a battery level that has never been read successfully.
const LevelUnknown = -1

// State is a tracked device's position in the connect/retry cycle.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateRetrying   State = "retrying"
)

// HalfReading is the battery state of one Battery Level characteristic
// instance. A split keyboard's central half reports one instance per half,
// labelled through the Characteristic User Description descriptor.
type HalfReading struct {
	Label string
	Level int       // 0..100, LevelUnknown before the first successful read
	At    time.Time // time of the last successful read
}

// Known reports whether this half ever produced a valid level.
func (r HalfReading) Known() bool {
	return r.Level != LevelUnknown
}

// DeviceStatus is the last known state of one tracked device. Readings
// survive disconnects: a non-Connected state marks them stale instead of
// clearing them.
type DeviceStatus struct {
	Selector  device.Selector
	Name      string
	State     State
	Halves    []HalfReading
	LastError string // short summary of the most recent failure, "" when healthy
}

// MinKnownLevel returns the lowest known level across the device's halves,
// LevelUnknown when no half has reported yet.
func (s DeviceStatus) MinKnownLevel() int {
	min := LevelUnknown
	for _, h := range s.Halves {
		if !h.Known() {
			continue
		}
		if min == LevelUnknown || h.Level < min {
			min = h.Level
		}
	}
	return min
}

// clone deep-copies the status so flows can keep mutating their own copy.
func (s DeviceStatus) clone() DeviceStatus {
	out := s
	out.Halves = make([]HalfReading, len(s.Halves))
	copy(out.Halves, s.Halves)
	return out
}

// Snapshot is an immutable view of every tracked device, in selector order.
type Snapshot struct {
	Devices []DeviceStatus
	At      time.Time
}

// MinLevel returns the lowest known level across all halves of all devices,
// LevelUnknown when nothing has reported yet.
func (s Snapshot) MinLevel() int {
	min := LevelUnknown
	for _, dev := range s.Devices {
		level := dev.MinKnownLevel()
		if level == LevelUnknown {
			continue
		}
		if min == LevelUnknown || level < min {
			min = level
		}
	}
	return min
}

// ParseBatteryLevel decodes a Battery Level characteristic value: a single
// byte 0..100. The reserved byte 0xFF ("level unknown") and out-of-range
// values are rejected so a stored reading never regresses to unknown.
func ParseBatteryLevel(data []byte) (int, error) {
	if len(data) == 0 {
		return LevelUnknown, fmt.Errorf("empty battery level value")
	}
	b := data[0]
	if b == 0xFF {
		return LevelUnknown, fmt.Errorf("battery level reported as reserved 0xff")
	}
	if b > 100 {
		return LevelUnknown, fmt.Errorf("battery level out of range: %d", b)
	}
	return int(b), nil
}
