package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressPrinterStopBeforeStart(t *testing.T) {
	p := NewProgressPrinter("Scanning for BLE devices", "Scanning")

	assert.NotPanics(t, p.Stop)
}

func TestProgressPrinterStopIsIdempotent(t *testing.T) {
	p := NewCountdownProgressPrinter("Scanning for BLE devices", "Scanning", 10*time.Second)
	p.Start()

	assert.NotPanics(t, func() {
		p.Stop()
		p.Stop()
	})
}

func TestProgressPrinterCallbackUpdatesPhase(t *testing.T) {
	p := NewProgressPrinter("Reading battery levels", "Scanning")

	p.Callback()("Connecting")

	assert.Equal(t, "Connecting", p.phase.Load())
}
