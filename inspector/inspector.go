// Package inspector runs one-shot operations against a peripheral: it
// owns the connect/disconnect lifecycle around a caller-supplied callback.
package inspector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

// ProgressCallback receives a short phase label whenever the inspection
// moves to a new stage ("Connecting", "Connected", ...).
type ProgressCallback func(phase string)

// InspectOptions tunes the connection bracket around the callback.
type InspectOptions struct {
	ConnectTimeout        time.Duration
	DescriptorReadTimeout time.Duration
}

// InspectCallback does the actual work against a connected device and
// returns whatever the caller wants out of the session.
type InspectCallback[R any] func(device.Device) (R, error)

// InspectDevice connects to dev, runs the callback, and disconnects,
// whether the callback succeeded or not. Connect failures are returned
// as-is; the callback is never invoked without an established link.
// progressCallback and logger may be nil.
func InspectDevice[R any](ctx context.Context, dev device.Device, opts *InspectOptions, logger *logrus.Logger, progressCallback ProgressCallback, callback InspectCallback[R]) (R, error) {
	var zero R
	if opts == nil {
		opts = &InspectOptions{ConnectTimeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}
	report := progressCallback
	if report == nil {
		report = func(string) {}
	}

	report("Connecting")
	err := dev.Connect(ctx, &device.ConnectOptions{
		ConnectTimeout:        opts.ConnectTimeout,
		DescriptorReadTimeout: opts.DescriptorReadTimeout,
	})
	if err != nil {
		report("Failed")
		return zero, err
	}
	report("Connected")

	defer func() {
		if err := dev.Disconnect(); err != nil {
			logger.WithError(err).Error("failed to disconnect device")
		}
	}()

	report("Processing results")
	return callback(dev)
}
