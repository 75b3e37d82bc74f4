package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// FindResult scripts one FakeFinder response.
type FindResult struct {
	Device device.Device
	Err    error
}

// Found scripts a successful device resolution.
func Found(dev device.Device) FindResult {
	return FindResult{Device: dev}
}

// NotFound scripts an empty scan window.
func NotFound() FindResult {
	return FindResult{Err: fmt.Errorf("%w: no matching advertisement", device.ErrDeviceNotFound)}
}

// FindFailed scripts a scan that failed outright.
func FindFailed(err error) FindResult {
	return FindResult{Err: err}
}

// FakeFinder plays back scripted FindDevice results in order, repeating
// the last entry once the script runs out so reconnect loops stay fed.
// It satisfies the monitor's DeviceFinder without touching a radio.
//
// With several selectors in play the shared script would interleave
// nondeterministically, so Route pins a dedicated script to one
// selector. Unrouted selectors keep consuming the shared script.
type FakeFinder struct {
	mu          sync.Mutex
	script      []FindResult
	calls       int
	sharedCalls int
	selectors   []device.Selector
	routes      map[string][]FindResult
	routeCalls  map[string]int

	// Delay simulates the scan window taking time. FindDevice honors ctx
	// cancellation during the wait.
	Delay time.Duration
}

// NewFakeFinder creates a finder with an initial script.
func NewFakeFinder(results ...FindResult) *FakeFinder {
	return &FakeFinder{script: results}
}

// Append extends the script.
func (f *FakeFinder) Append(results ...FindResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, results...)
}

// Route pins a script to one selector. Routed lookups never consume the
// shared script.
func (f *FakeFinder) Route(sel device.Selector, results ...FindResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routes == nil {
		f.routes = make(map[string][]FindResult)
		f.routeCalls = make(map[string]int)
	}
	f.routes[sel.String()] = append(f.routes[sel.String()], results...)
}

// Calls reports how many times FindDevice was invoked.
func (f *FakeFinder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// CallsFor reports how many lookups a routed selector received.
func (f *FakeFinder) CallsFor(sel device.Selector) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.routeCalls[sel.String()]
}

// Selectors returns the selectors FindDevice was asked to resolve.
func (f *FakeFinder) Selectors() []device.Selector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]device.Selector(nil), f.selectors...)
}

func (f *FakeFinder) FindDevice(ctx context.Context, sel device.Selector, _ time.Duration) (device.Device, error) {
	f.mu.Lock()
	f.calls++
	f.selectors = append(f.selectors, sel)
	script := f.script
	var idx int
	if routed, ok := f.routes[sel.String()]; ok {
		script = routed
		idx = f.routeCalls[sel.String()]
		f.routeCalls[sel.String()]++
	} else {
		idx = f.sharedCalls
		f.sharedCalls++
	}
	if idx >= len(script) {
		idx = len(script) - 1
	}
	var result FindResult
	if idx >= 0 {
		result = script[idx]
	} else {
		result = NotFound()
	}
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Device, nil
}
