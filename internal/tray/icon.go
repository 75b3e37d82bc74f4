package tray

import (
	"fmt"

	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
)

// IconName maps a battery level to a freedesktop symbolic icon name. The
// level is rounded to the nearest multiple of ten, matching the
// battery-level-N-symbolic set shipped by Adwaita and friends.
func IconName(level, lowThreshold int) string {
	if level == monitor.LevelUnknown {
		return "battery-missing-symbolic"
	}
	if level <= lowThreshold {
		return "battery-caution-symbolic"
	}
	rounded := (level + 5) / 10 * 10
	if rounded > 100 {
		rounded = 100
	}
	return fmt.Sprintf("battery-level-%d-symbolic", rounded)
}

// TooltipLines renders one line per battery instance. Devices that are not
// connected get a "(disconnected)" marker after their stale readings;
// levels never read show as "--".
func TooltipLines(snap monitor.Snapshot) []string {
	multi := len(snap.Devices) > 1
	lines := make([]string, 0, len(snap.Devices)*2)

	for _, dev := range snap.Devices {
		suffix := ""
		if dev.State != monitor.StateConnected {
			suffix = " (disconnected)"
		}

		// A lone battery instance reads better under the device's own name
		if len(dev.Halves) == 0 {
			lines = append(lines, fmt.Sprintf("%s: --%s", dev.Name, suffix))
			continue
		}
		if len(dev.Halves) == 1 {
			lines = append(lines, fmt.Sprintf("%s: %s%s", dev.Name, levelText(dev.Halves[0]), suffix))
			continue
		}

		for _, h := range dev.Halves {
			name := h.Label
			if multi {
				name = dev.Name + " " + h.Label
			}
			lines = append(lines, fmt.Sprintf("%s: %s%s", name, levelText(h), suffix))
		}
	}
	return lines
}

func levelText(h monitor.HalfReading) string {
	if !h.Known() {
		return "--"
	}
	return fmt.Sprintf("%d%%", h.Level)
}
