package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Normalization itself is covered in the bledb package; here we only pin
// the re-export so callers of device.NormalizeUUID keep getting the same
// canonical form.
func TestNormalizeUUIDReexport(t *testing.T) {
	assert.Equal(t, "2a19", NormalizeUUID("0x2A19"))
	assert.Equal(t, "180f", NormalizeUUID("0000180F-0000-1000-8000-00805F9B34FB"))
	assert.Equal(t, "6e400001b5a3f393e0a9e50e24dcca9e", NormalizeUUID("6E400001-B5A3-F393-E0A9-E50E24DCCA9E"))
}

func TestNormalizeUUIDsSlice(t *testing.T) {
	got := NormalizeUUIDs([]string{"0x180F", "1812", "0000181A-0000-1000-8000-00805F9B34FB"})
	assert.Equal(t, []string{"180f", "1812", "181a"}, got)
}

func TestShortenUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "16-bit UUID unchanged",
			input:    "2a19",
			expected: "2a19",
		},
		{
			name:     "eight characters unchanged",
			input:    "12345678",
			expected: "12345678",
		},
		{
			name:     "128-bit UUID truncated",
			input:    "6e400001b5a3f393e0a9e50e24dcca9e",
			expected: "6e400001",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShortenUUID(tt.input))
		})
	}
}

func TestValidateUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
		wantErr  string
	}{
		{
			name:     "single short UUID",
			input:    []string{"180f"},
			expected: []string{"180f"},
		},
		{
			name:     "mixed forms normalized",
			input:    []string{"0x180F", "00001812-0000-1000-8000-00805F9B34FB"},
			expected: []string{"180f", "1812"},
		},
		{
			name:     "custom 128-bit UUID kept whole",
			input:    []string{"6E400001-B5A3-F393-E0A9-E50E24DCCA9E"},
			expected: []string{"6e400001b5a3f393e0a9e50e24dcca9e"},
		},
		{
			name:    "no arguments",
			input:   nil,
			wantErr: "at least one UUID is required",
		},
		{
			name:    "empty entry",
			input:   []string{"180f", ""},
			wantErr: "UUID at index 1 cannot be empty",
		},
		{
			name:    "whitespace only entry",
			input:   []string{"   "},
			wantErr: "invalid UUID format at index 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateUUID(tt.input...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
