package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Cirius1792/split-keeb-battery/internal/bledb"
	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/groutine"
	"github.com/Cirius1792/split-keeb-battery/internal/ringchan"
	"github.com/Cirius1792/split-keeb-battery/pkg/config"
)

// statusEvent is one flow's report to the run loop: a fresh status copy
// plus an optional out-of-band alert.
type statusEvent struct {
	key    string
	status DeviceStatus
	alert  *alert
}

type alert struct {
	summary string
	body    string
}

// flow drives one device through the scan/connect/monitor cycle. The
// status and counters are owned by the flow goroutine; everything leaves
// through the events ring as copies.
type flow struct {
	key    string
	sel    device.Selector
	cfg    *config.Config
	logger *logrus.Entry
	finder DeviceFinder
	events *ringchan.Ring[statusEvent]

	status         DeviceStatus
	retry          *backoff
	notFoundStreak int
}

func newFlow(key string, sel device.Selector, cfg *config.Config, logger *logrus.Logger, finder DeviceFinder, events *ringchan.Ring[statusEvent]) *flow {
	name := sel.Name
	if name == "" {
		name = sel.ID
	}
	return &flow{
		key:    key,
		sel:    sel,
		cfg:    cfg,
		logger: logger.WithField("device", key),
		finder: finder,
		events: events,
		status: DeviceStatus{
			Selector: sel,
			Name:     name,
			State:    StateIdle,
		},
		retry: newBackoff(cfg.Reconnect.InitialDelay, cfg.Reconnect.MaxDelay),
	}
}

// run cycles the state machine until ctx ends. Failures are never fatal:
// the flow always comes back to Scanning after a backoff, except for a
// peripheral with no battery service, which parks for the session.
func (f *flow) run(ctx context.Context) {
	defer func() {
		f.status.State = StateIdle
		f.publish(nil)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		f.setState(StateScanning, "")
		dev, err := f.finder.FindDevice(ctx, f.sel, f.cfg.Reconnect.ScanTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.handleScanFailure(err)
			if !f.waitRetry(ctx, err) {
				return
			}
			continue
		}
		f.notFoundStreak = 0

		f.setState(StateConnecting, "")
		err = dev.Connect(ctx, &device.ConnectOptions{
			ConnectTimeout: f.cfg.Reconnect.ConnectTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.WithError(err).Warn("Connect failed")
			if !f.waitRetry(ctx, err) {
				return
			}
			continue
		}

		f.retry.Reset()
		err = f.serve(ctx, dev)

		if disconnectErr := dev.Disconnect(); disconnectErr != nil {
			f.logger.WithError(disconnectErr).Debug("Disconnect reported an error")
		}

		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, device.ErrCharacteristicUnsupported) {
			f.park(ctx)
			return
		}

		f.logger.WithError(err).Warn("Link lost")
		if !f.waitRetry(ctx, err) {
			return
		}
	}
}

// serve watches a connected device until the link drops, ctx ends, or the
// peripheral turns out not to expose battery levels. Levels arrive through
// notifications where supported and through polling everywhere else.
func (f *flow) serve(ctx context.Context, dev device.Device) error {
	conn := dev.GetConnection()
	chars := conn.FindCharacteristics(bledb.ServiceBattery, bledb.CharBatteryLevel)
	if len(chars) == 0 {
		return device.ErrCharacteristicUnsupported
	}

	f.status.Name = dev.Name()
	f.rebuildHalves(chars)
	f.setState(StateConnected, "")

	f.logger.WithFields(logrus.Fields{
		"address": dev.Address(),
		"halves":  len(chars),
	}).Info("Connected, monitoring battery")

	// Seed every half with an initial read; notifications only fire on change
	for i, char := range chars {
		if err := f.readHalf(i, char); err != nil {
			return err
		}
	}
	f.publish(nil)

	type halfValue struct {
		idx int
		val device.Value
	}
	values := make(chan halfValue, len(chars))

	var pumps sync.WaitGroup
	var subs []device.Subscription
	var polled []int

	for i, char := range chars {
		if !device.SupportsNotifications(char) {
			polled = append(polled, i)
			continue
		}
		sub, err := char.Subscribe()
		if err != nil {
			f.logger.WithError(err).WithField("half", f.status.Halves[i].Label).Warn("Subscribe failed, falling back to polling")
			polled = append(polled, i)
			continue
		}
		subs = append(subs, sub)
		idx := i
		groutine.GoWG(ctx, &pumps, fmt.Sprintf("half-pump-%d", idx), func(pumpCtx context.Context) {
			for v := range sub.C() {
				select {
				case values <- halfValue{idx: idx, val: v}:
				case <-pumpCtx.Done():
					return
				}
			}
		})
	}
	defer func() {
		for _, sub := range subs {
			sub.Cancel()
		}
		// Keep draining so a pump blocked on a full values channel can
		// finish its send and exit
		drained := make(chan struct{})
		go func() {
			pumps.Wait()
			close(drained)
		}()
		for {
			select {
			case <-values:
			case <-drained:
				return
			}
		}
	}()

	var tick <-chan time.Time
	if len(polled) > 0 {
		ticker := time.NewTicker(f.cfg.Battery.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
		f.logger.WithField("halves", len(polled)).Debug("Polling halves without notification support")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Context().Done():
			return device.ErrLinkLost
		case hv := <-values:
			if f.storeLevel(hv.idx, hv.val.Data, hv.val.At) {
				f.publish(nil)
			}
		case <-tick:
			for _, i := range polled {
				if err := f.readHalf(i, chars[i]); err != nil {
					return err
				}
			}
			f.publish(nil)
		}
	}
}

// readHalf reads one battery instance. Link-level failures propagate so
// the flow can transition to Retrying; malformed values are discarded and
// the stored reading stays put.
func (f *flow) readHalf(idx int, char device.Characteristic) error {
	data, err := char.Read(0)
	if err != nil {
		if errors.Is(err, device.ErrLinkLost) || errors.Is(err, device.ErrNotConnected) || errors.Is(err, device.ErrTimeout) {
			return err
		}
		f.logger.WithError(err).WithField("half", f.status.Halves[idx].Label).Warn("Battery read failed")
		return nil
	}
	f.storeLevel(idx, data, time.Now())
	return nil
}

// storeLevel parses and stores one level, reporting whether the reading
// changed. Invalid values never overwrite a known reading.
func (f *flow) storeLevel(idx int, data []byte, at time.Time) bool {
	level, err := ParseBatteryLevel(data)
	if err != nil {
		f.logger.WithError(err).WithField("half", f.status.Halves[idx].Label).Debug("Discarding battery value")
		return false
	}
	half := &f.status.Halves[idx]
	half.Level = level
	half.At = at
	f.logger.WithFields(logrus.Fields{
		"half":  half.Label,
		"level": level,
	}).Debug("Battery level updated")
	return true
}

// rebuildHalves maps the discovered battery instances to half readings,
// carrying earlier levels over so a reconnect never loses a reading.
func (f *flow) rebuildHalves(chars []device.Characteristic) {
	prev := f.status.Halves
	halves := make([]HalfReading, len(chars))
	for i, char := range chars {
		label := HalfLabel(char, i, len(chars))
		halves[i] = HalfReading{Label: label, Level: LevelUnknown}
		if kept, ok := previousReading(prev, label, i); ok {
			halves[i].Level = kept.Level
			halves[i].At = kept.At
		}
	}
	f.status.Halves = halves
}

// previousReading recovers the pre-disconnect reading for a half, matching
// by label first and position second.
func previousReading(prev []HalfReading, label string, idx int) (HalfReading, bool) {
	for _, p := range prev {
		if p.Label == label {
			return p, true
		}
	}
	if idx < len(prev) {
		return prev[idx], true
	}
	return HalfReading{}, false
}

// HalfLabel names one battery instance: the Characteristic User Description
// descriptor value when present (ZMK labels its halves there), otherwise a
// positional fallback.
func HalfLabel(char device.Characteristic, idx, total int) string {
	for _, desc := range char.GetDescriptors() {
		if desc.UUID() != bledb.DescUserDescription {
			continue
		}
		label, err := device.ParseUserDescription(desc.Value())
		if err == nil && label != "" {
			return label
		}
	}
	if total == 1 {
		return "battery"
	}
	return fmt.Sprintf("battery %d", idx+1)
}

// handleScanFailure counts consecutive empty scan windows and surfaces a
// single not-found alert once the configured streak is reached.
func (f *flow) handleScanFailure(err error) {
	if !errors.Is(err, device.ErrDeviceNotFound) {
		f.logger.WithError(err).Warn("Scan failed")
		return
	}
	f.notFoundStreak++
	f.logger.WithField("streak", f.notFoundStreak).Info("Device not found in scan window")
	if f.notFoundStreak == f.cfg.Reconnect.NotFoundNotifyAfter {
		f.publish(&alert{
			summary: fmt.Sprintf("%s: device not found", f.status.Name),
			body:    fmt.Sprintf("No advertisement seen in %d scans. Still looking.", f.notFoundStreak),
		})
	}
}

// waitRetry parks the flow in Retrying for the next backoff delay.
// Returns false when ctx ended during the wait.
func (f *flow) waitRetry(ctx context.Context, cause error) bool {
	delay := f.retry.Next()
	f.setState(StateRetrying, summarize(cause))
	f.logger.WithFields(logrus.Fields{
		"delay": delay,
		"cause": cause,
	}).Info("Retrying after backoff")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// park reports an unsupported peripheral once and idles until shutdown.
// Readings stay unknown for the rest of the session; the other device's
// flow is unaffected.
func (f *flow) park(ctx context.Context) {
	f.logger.Warn("Peripheral exposes no Battery Level characteristic, monitoring disabled for this session")
	f.status.State = StateIdle
	f.status.LastError = "battery service unsupported"
	f.publish(&alert{
		summary: fmt.Sprintf("%s: battery level unavailable", f.status.Name),
		body:    "The device does not expose a Battery Level characteristic.",
	})
	<-ctx.Done()
}

func (f *flow) setState(state State, errSummary string) {
	f.status.State = state
	f.status.LastError = errSummary
	f.publish(nil)
}

func (f *flow) publish(a *alert) {
	f.events.Send(statusEvent{key: f.key, status: f.status.clone(), alert: a})
}

// summarize trims an error to a one-line status summary.
func summarize(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
