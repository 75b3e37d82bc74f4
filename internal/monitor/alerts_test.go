package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type observation struct {
	level int
	want  bool
}

func runObservations(t *testing.T, d *crossingDetector, obs []observation) {
	t.Helper()
	for i, o := range obs {
		assert.Equal(t, o.want, d.Observe(o.level), "observation %d (level %d)", i+1, o.level)
	}
}

func TestCrossingDetector_FiresOncePerDownwardCrossing(t *testing.T) {
	d := newCrossingDetector(20, 0)

	runObservations(t, d, []observation{
		{level: 50, want: false},
		{level: 21, want: false},
		{level: 19, want: true},  // crossing
		{level: 15, want: false}, // still below, already notified
		{level: 19, want: false},
		{level: 25, want: false}, // recovery re-arms
		{level: 18, want: true},  // second crossing
	})
}

func TestCrossingDetector_FirstObservationAlreadyBelow(t *testing.T) {
	// A device that connects with a drained battery should alert right away
	d := newCrossingDetector(20, 0)

	runObservations(t, d, []observation{
		{level: 12, want: true},
		{level: 11, want: false},
	})
}

func TestCrossingDetector_UnknownLevelsNeverFire(t *testing.T) {
	d := newCrossingDetector(20, 0)

	runObservations(t, d, []observation{
		{level: LevelUnknown, want: false},
		{level: LevelUnknown, want: false},
		{level: 10, want: true},
		{level: LevelUnknown, want: false}, // a dropout does not re-arm
		{level: 9, want: false},
	})
}

func TestCrossingDetector_RenotifyStep(t *testing.T) {
	d := newCrossingDetector(20, 5)

	runObservations(t, d, []observation{
		{level: 19, want: true},  // crossing
		{level: 16, want: false}, // dropped 3, below the step
		{level: 14, want: true},  // dropped 5 from the last notification
		{level: 14, want: false},
		{level: 10, want: false}, // dropped 4
		{level: 9, want: true},   // dropped 5
		{level: 30, want: false}, // recovery
		{level: 20, want: true},  // fresh crossing
	})
}

func TestCrossingDetector_ExactThresholdCounts(t *testing.T) {
	d := newCrossingDetector(20, 0)

	runObservations(t, d, []observation{
		{level: 20, want: true},
		{level: 20, want: false},
	})
}
