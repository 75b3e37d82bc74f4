package tray

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
)

func TestIconName(t *testing.T) {
	tests := []struct {
		name      string
		level     int
		threshold int
		want      string
	}{
		{name: "unknown level", level: monitor.LevelUnknown, threshold: 20, want: "battery-missing-symbolic"},
		{name: "below threshold", level: 12, threshold: 20, want: "battery-caution-symbolic"},
		{name: "at threshold", level: 20, threshold: 20, want: "battery-caution-symbolic"},
		{name: "just above threshold", level: 21, threshold: 20, want: "battery-level-20-symbolic"},
		{name: "rounds down", level: 74, threshold: 20, want: "battery-level-70-symbolic"},
		{name: "rounds up", level: 85, threshold: 20, want: "battery-level-90-symbolic"},
		{name: "full", level: 100, threshold: 20, want: "battery-level-100-symbolic"},
		{name: "rounding never exceeds 100", level: 98, threshold: 20, want: "battery-level-100-symbolic"},
		{name: "rounds to zero with threshold off", level: 2, threshold: 0, want: "battery-level-0-symbolic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IconName(tt.level, tt.threshold))
		})
	}
}

func TestTooltipLines(t *testing.T) {
	corne := monitor.DeviceStatus{
		Name:  "Corne",
		State: monitor.StateConnected,
		Halves: []monitor.HalfReading{
			{Label: "LEFT", Level: 81},
			{Label: "RIGHT", Level: 74},
		},
	}

	t.Run("connected split keyboard", func(t *testing.T) {
		lines := TooltipLines(monitor.Snapshot{Devices: []monitor.DeviceStatus{corne}})
		assert.Equal(t, []string{"LEFT: 81%", "RIGHT: 74%"}, lines)
	})

	t.Run("stale readings get a disconnected marker", func(t *testing.T) {
		stale := corne
		stale.State = monitor.StateRetrying
		lines := TooltipLines(monitor.Snapshot{Devices: []monitor.DeviceStatus{stale}})
		assert.Equal(t, []string{"LEFT: 81% (disconnected)", "RIGHT: 74% (disconnected)"}, lines)
	})

	t.Run("unknown level renders as dashes", func(t *testing.T) {
		partial := corne
		partial.Halves = []monitor.HalfReading{
			{Label: "LEFT", Level: 81},
			{Label: "RIGHT", Level: monitor.LevelUnknown},
		}
		lines := TooltipLines(monitor.Snapshot{Devices: []monitor.DeviceStatus{partial}})
		assert.Equal(t, []string{"LEFT: 81%", "RIGHT: --"}, lines)
	})

	t.Run("device without discovered halves", func(t *testing.T) {
		searching := monitor.DeviceStatus{Name: "Corne", State: monitor.StateScanning}
		lines := TooltipLines(monitor.Snapshot{Devices: []monitor.DeviceStatus{searching}})
		assert.Equal(t, []string{"Corne: -- (disconnected)"}, lines)
	})

	t.Run("single battery uses the device name", func(t *testing.T) {
		pad := monitor.DeviceStatus{
			Name:   "NumPad",
			State:  monitor.StateConnected,
			Halves: []monitor.HalfReading{{Label: "battery", Level: 55}},
		}
		lines := TooltipLines(monitor.Snapshot{Devices: []monitor.DeviceStatus{pad}})
		assert.Equal(t, []string{"NumPad: 55%"}, lines)
	})

	t.Run("two devices prefix half labels", func(t *testing.T) {
		lily := monitor.DeviceStatus{
			Name:  "Lily58",
			State: monitor.StateConnected,
			Halves: []monitor.HalfReading{
				{Label: "LEFT", Level: 40},
				{Label: "RIGHT", Level: 38},
			},
		}
		lines := TooltipLines(monitor.Snapshot{Devices: []monitor.DeviceStatus{corne, lily}})
		assert.Equal(t, []string{
			"Corne LEFT: 81%",
			"Corne RIGHT: 74%",
			"Lily58 LEFT: 40%",
			"Lily58 RIGHT: 38%",
		}, lines)
	})

	t.Run("empty snapshot", func(t *testing.T) {
		assert.Empty(t, TooltipLines(monitor.Snapshot{}))
	})
}
