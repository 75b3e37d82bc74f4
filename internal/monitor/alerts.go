package monitor

// crossingDetector decides when a device's battery level warrants a
// low-battery notification: once per downward crossing of the threshold,
// re-armed when the level recovers above it. With step > 0 an extra
// notification fires each time the level drops that many points below the
// last notified one. Not safe for concurrent use; the run loop owns one
// per device.
type crossingDetector struct {
	threshold    int
	step         int
	lastNotified int // level at the last notification, LevelUnknown when armed
}

func newCrossingDetector(threshold, step int) *crossingDetector {
	return &crossingDetector{
		threshold:    threshold,
		step:         step,
		lastNotified: LevelUnknown,
	}
}

// Observe feeds the device's current min known level and reports whether a
// notification should fire now. Unknown levels never fire. A first
// observation already at or below the threshold counts as a crossing.
func (d *crossingDetector) Observe(level int) bool {
	if level == LevelUnknown {
		return false
	}

	if level > d.threshold {
		d.lastNotified = LevelUnknown
		return false
	}

	if d.lastNotified == LevelUnknown {
		d.lastNotified = level
		return true
	}
	if d.step > 0 && level <= d.lastNotified-d.step {
		d.lastNotified = level
		return true
	}
	return false
}
