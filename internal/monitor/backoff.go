package monitor

import "time"

// backoff computes capped exponential reconnect delays. Not safe for
// concurrent use; each flow owns its own.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	if initial <= 0 {
		initial = 2 * time.Second
	}
	if max < initial {
		max = initial
	}
	return &backoff{initial: initial, max: max}
}

// Next returns the delay to wait before the next attempt, doubling on each
// call up to the cap.
func (b *backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.initial
		return b.current
	}
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return b.current
}

// Reset restores the initial delay. Called after every successful connect.
func (b *backoff) Reset() {
	b.current = 0
}
