// Package monitor tracks the battery levels of up to two BLE keyboards.
// Each configured device gets its own flow goroutine that scans, connects,
// discovers the Battery Service, and keeps readings fresh through
// notifications or polling, reconnecting with exponential backoff whenever
// the link drops. Flows report into a single run loop that maintains the
// published snapshot and routes alerts, so sinks and notifiers never see
// concurrent calls.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/groutine"
	"github.com/Cirius1792/split-keeb-battery/internal/ringchan"
	"github.com/Cirius1792/split-keeb-battery/pkg/config"
	"github.com/Cirius1792/split-keeb-battery/scanner"
)

// ErrNoDeviceSelected indicates that no usable device selector was given.
var ErrNoDeviceSelected = errors.New("no device selected")

const (
	// stopGracePeriod bounds how long Stop waits for flows to unwind.
	stopGracePeriod = 5 * time.Second

	// eventBuffer sizes the flow-to-run-loop ring. Old events are dropped
	// under pressure; only the latest status per device matters.
	eventBuffer = 64
)

// DeviceFinder resolves a selector to a connectable device by scanning.
// *scanner.Scanner satisfies it.
type DeviceFinder interface {
	FindDevice(ctx context.Context, sel device.Selector, timeout time.Duration) (device.Device, error)
}

// Sink receives every published snapshot. Calls arrive on a single
// goroutine in order; Publish must return promptly.
type Sink interface {
	Publish(Snapshot)
}

// Notifier delivers user-facing alerts. The monitor fires and forgets;
// delivery failures are logged, never fatal.
type Notifier interface {
	Notify(summary, body string) error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSink registers a snapshot consumer, such as the system tray.
func WithSink(s Sink) Option {
	return func(m *Monitor) { m.sinks = append(m.sinks, s) }
}

// WithNotifier sets the alert delivery channel.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithFinder overrides the scanner-backed device finder. Used by tests.
func WithFinder(f DeviceFinder) Option {
	return func(m *Monitor) { m.finder = f }
}

// Monitor owns the device flows and the presentation path.
type Monitor struct {
	cfg      *config.Config
	logger   *logrus.Logger
	finder   DeviceFinder
	sinks    []Sink
	notifier Notifier

	mu      sync.Mutex
	flows   *orderedmap.OrderedMap[string, *flow]
	events  *ringchan.Ring[statusEvent]
	cancel  context.CancelFunc
	flowsWG sync.WaitGroup
	runDone chan struct{}
	started bool
	stopped bool

	snapMu sync.RWMutex
	snap   Snapshot
}

// New creates a Monitor. Without WithFinder it scans through the default
// BLE transport.
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if logger == nil {
		logger = logrus.New()
	}

	m := &Monitor{
		cfg:     cfg,
		logger:  logger,
		flows:   orderedmap.New[string, *flow](),
		events:  ringchan.New[statusEvent](eventBuffer),
		runDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.finder == nil {
		sc, err := scanner.NewScanner(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create scanner: %w", err)
		}
		m.finder = sc
	}
	return m, nil
}

// Start spawns one independent flow per selector and returns. The flows
// run until ctx ends or Stop is called.
func (m *Monitor) Start(ctx context.Context, selectors []device.Selector) error {
	if len(selectors) == 0 {
		return ErrNoDeviceSelected
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("monitor already started")
	}

	// Validate before touching any state so a failed Start can be retried
	// with corrected selectors
	seen := make(map[string]struct{}, len(selectors))
	for _, sel := range selectors {
		if sel.IsZero() {
			return ErrNoDeviceSelected
		}
		key := sel.String()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate device selector %q", key)
		}
		seen[key] = struct{}{}
	}

	runCtx, cancel := context.WithCancel(ctx)

	for _, sel := range selectors {
		key := sel.String()
		m.flows.Set(key, newFlow(key, sel, m.cfg, m.logger, m.finder, m.events))
	}

	// The flow goroutines own their statuses once spawned, so the initial
	// all-idle view is captured here while nothing else runs
	order := make([]string, 0, m.flows.Len())
	initial := make(map[string]DeviceStatus, m.flows.Len())
	for pair := m.flows.Oldest(); pair != nil; pair = pair.Next() {
		order = append(order, pair.Key)
		initial[pair.Key] = pair.Value.status.clone()
	}
	first := buildSnapshot(order, initial)
	m.setSnapshot(first)
	m.publishToSinks(first)

	m.started = true
	m.cancel = cancel

	groutine.Go(context.Background(), "monitor-run", func(context.Context) {
		m.run(order, initial)
	})
	for pair := m.flows.Oldest(); pair != nil; pair = pair.Next() {
		f := pair.Value
		groutine.GoWG(runCtx, &m.flowsWG, "flow-"+f.key, f.run)
	}

	m.logger.WithField("devices", m.flows.Len()).Info("Battery monitor started")
	return nil
}

// Stop cancels all flows, waits for them to unwind within the grace
// period, then drains the presentation path. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	m.logger.Info("Stopping battery monitor...")
	cancel()

	if !waitTimeout(&m.flowsWG, stopGracePeriod) {
		m.logger.Warn("Some device flows did not unwind in time")
	}

	m.events.Close()
	<-m.runDone
	m.logger.Info("Battery monitor stopped")
}

// Snapshot returns the most recently published snapshot.
func (m *Monitor) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

// run is the presentation loop: it folds flow events into the snapshot,
// fans it out to sinks, and routes alerts. It exits when the events ring
// is closed and drained.
func (m *Monitor) run(order []string, latest map[string]DeviceStatus) {
	defer close(m.runDone)

	detectors := make(map[string]*crossingDetector, len(order))
	for _, key := range order {
		detectors[key] = newCrossingDetector(m.cfg.Battery.LowThreshold, m.cfg.Battery.RenotifyStep)
	}

	for ev := range m.events.C() {
		latest[ev.key] = ev.status

		snap := buildSnapshot(order, latest)
		m.setSnapshot(snap)
		m.publishToSinks(snap)

		if ev.alert != nil {
			m.notify(ev.alert.summary, ev.alert.body)
		}
		if det := detectors[ev.key]; det != nil && det.Observe(ev.status.MinKnownLevel()) {
			m.notifyLowBattery(ev.status)
		}
	}
}

func buildSnapshot(order []string, latest map[string]DeviceStatus) Snapshot {
	snap := Snapshot{
		Devices: make([]DeviceStatus, 0, len(order)),
		At:      time.Now(),
	}
	for _, key := range order {
		if st, ok := latest[key]; ok {
			snap.Devices = append(snap.Devices, st)
		}
	}
	return snap
}

func (m *Monitor) setSnapshot(snap Snapshot) {
	m.snapMu.Lock()
	m.snap = snap
	m.snapMu.Unlock()
}

func (m *Monitor) publishToSinks(snap Snapshot) {
	for _, sink := range m.sinks {
		sink.Publish(snap)
	}
}

// notifyLowBattery formats the low battery alert for a device whose lowest
// known half level crossed the threshold.
func (m *Monitor) notifyLowBattery(st DeviceStatus) {
	summary := fmt.Sprintf("%s: battery low (%d%%)", st.Name, st.MinKnownLevel())
	var parts []string
	for _, h := range st.Halves {
		if h.Known() {
			parts = append(parts, fmt.Sprintf("%s %d%%", h.Label, h.Level))
		}
	}
	m.notify(summary, strings.Join(parts, ", "))
}

func (m *Monitor) notify(summary, body string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(summary, body); err != nil {
		m.logger.WithError(err).Warn("Failed to deliver notification")
	}
}

// waitTimeout waits for wg up to d, reporting whether it finished in time.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
