package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DoublesUpToCap(t *testing.T) {
	b := newBackoff(10*time.Millisecond, 80*time.Millisecond)

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
		80 * time.Millisecond,
		80 * time.Millisecond,
	}
	for i, expected := range want {
		assert.Equal(t, expected, b.Next(), "attempt %d", i+1)
	}
}

func TestBackoff_ResetRestartsTheRamp(t *testing.T) {
	b := newBackoff(5*time.Millisecond, time.Second)

	b.Next()
	b.Next()
	b.Next()
	b.Reset()

	assert.Equal(t, 5*time.Millisecond, b.Next())
	assert.Equal(t, 10*time.Millisecond, b.Next())
}

func TestBackoff_DegenerateInputs(t *testing.T) {
	tests := []struct {
		name    string
		initial time.Duration
		max     time.Duration
		want    []time.Duration
	}{
		{
			name:    "zero initial falls back to a sane default",
			initial: 0,
			max:     10 * time.Second,
			want:    []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second},
		},
		{
			name:    "max below initial is clamped to initial",
			initial: 5 * time.Second,
			max:     time.Second,
			want:    []time.Duration{5 * time.Second, 5 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackoff(tt.initial, tt.max)
			for i, expected := range tt.want {
				assert.Equal(t, expected, b.Next(), "attempt %d", i+1)
			}
		})
	}
}
