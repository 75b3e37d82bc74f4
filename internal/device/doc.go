// Package device defines the Bluetooth Low Energy (BLE) abstractions the
// battery monitor is built on: devices discovered by scanning, GATT
// connections with service/characteristic access, cancellable
// notification subscriptions, and the error taxonomy shared by the
// connection flows.
//
// Implementations live in subpackages; internal/device/go-ble provides
// the production one on top of github.com/go-ble/ble.
package device
