package device

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParseUserDescription decodes a Characteristic User Description descriptor
// value (0x2901) into a display label. The value is a UTF-8 string that
// firmware often pads with NUL bytes or whitespace; both are stripped.
// ZMK keyboards store the per-half battery labels ("LEFT", "RIGHT") here.
func ParseUserDescription(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	str := strings.TrimRight(string(data), "\x00")
	if !utf8.ValidString(str) {
		return "", fmt.Errorf("invalid UTF-8 in user description")
	}

	return strings.TrimSpace(str), nil
}
