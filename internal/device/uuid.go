package device

import (
	"fmt"

	"github.com/Cirius1792/split-keeb-battery/internal/bledb"
)

// NormalizeUUID re-exports bledb.NormalizeUUID so device consumers do not
// need a second import for the canonical form (lowercase, no dashes,
// 16-bit short form when the UUID sits on the Bluetooth SIG base).
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// NormalizeUUIDs normalizes a slice of UUID strings.
func NormalizeUUIDs(uuids []string) []string {
	return bledb.NormalizeUUIDs(uuids)
}

// ValidateUUID normalizes user-supplied UUID filters, rejecting empty
// entries with an index so the offending flag value is easy to spot.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if normalized == "" {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

// ShortenUUID truncates long UUIDs to their first eight characters for
// table cells. Custom 128-bit services would otherwise swallow the row.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}
