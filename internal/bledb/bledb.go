// Package bledb maps Bluetooth SIG assigned numbers to human-readable
// names and normalizes the many spellings a UUID arrives in (short form,
// 0x-prefixed, braced, dashed or bare 128-bit).
//
// The table is a curated subset of the SIG registry: the battery and
// generic-access entries this program depends on, plus the services a
// BLE keyboard commonly advertises next to them, so scan and read
// output stays readable.
package bledb

import "strings"

// Well-known UUIDs in normalized short form.
const (
	ServiceGenericAccess     = "1800"
	ServiceGenericAttribute  = "1801"
	ServiceDeviceInformation = "180a"
	ServiceBattery           = "180f"
	ServiceHumanInterface    = "1812"

	CharDeviceName        = "2a00"
	CharAppearance        = "2a01"
	CharServiceChanged    = "2a05"
	CharBatteryLevel      = "2a19"
	CharBatteryPowerState = "2a1a"

	DescUserDescription = "2901"
	DescClientCharConf  = "2902"
	DescPresentation    = "2904"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb with dashes removed.
const sigBaseSuffix = "00001000800000805f9b34fb"

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"1812": "Human Interface Device",
	"1813": "Scan Parameters",
	"fe59": "Nordic Semiconductor ASA (DFU)",
}

var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a04": "Peripheral Preferred Connection Parameters",
	"2a05": "Service Changed",
	"2a19": "Battery Level",
	"2a1a": "Battery Power State",
	"2a24": "Model Number String",
	"2a25": "Serial Number String",
	"2a26": "Firmware Revision String",
	"2a27": "Hardware Revision String",
	"2a28": "Software Revision String",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",
	"2a4a": "HID Information",
	"2a4b": "Report Map",
	"2a4c": "HID Control Point",
	"2a4d": "Report",
	"2a4e": "Protocol Mode",
}

var descriptors = map[string]string{
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Descriptor",
	"2902": "Client Characteristic Configuration",
	"2903": "Server Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
	"2908": "Report Reference",
}

// NormalizeUUID lowercases a UUID, strips 0x prefixes, braces and
// dashes, and collapses UUIDs on the Bluetooth SIG base down to their
// 16-bit short form. Custom 128-bit UUIDs come back as 32 bare hex
// characters.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	switch len(s) {
	case 32:
		if strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
			return s[4:8]
		}
	case 8:
		if strings.HasPrefix(s, "0000") {
			return s[4:]
		}
	}
	return s
}

// NormalizeUUIDs normalizes a slice of UUIDs in one pass.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// LookupService returns the SIG name for a service UUID, or "" when the
// UUID is not in the table.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the SIG name for a characteristic UUID,
// or "" when unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the SIG name for a descriptor UUID, or ""
// when unknown.
func LookupDescriptor(uuid string) string {
	return descriptors[NormalizeUUID(uuid)]
}
