package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressTick      = 250 * time.Millisecond
	clearLineSequence = "\r\033[K"
)

// ProgressPrinter renders a single updating status line on stderr while a
// slow operation runs, counting down when a duration is known and up
// otherwise. It stays silent when stderr is not a terminal, so piped and
// scripted runs see only real output.
//
// A printer is single-use: Start once, Stop once (Stop is safe to repeat).
// The phase callback may be invoked from any goroutine.
type ProgressPrinter struct {
	prefix   string
	phase    atomic.Value // current phase string
	duration time.Duration
	started  time.Time
	active   bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewProgressPrinter creates a printer showing elapsed seconds.
func NewProgressPrinter(prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{prefix: prefix}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a printer counting down from duration.
func NewCountdownProgressPrinter(prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := NewProgressPrinter(prefix, phase)
	p.duration = duration
	return p
}

// Start begins rendering. A printer on a non-terminal stderr never renders.
func (p *ProgressPrinter) Start() {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return
	}
	p.active = true
	p.started = time.Now()
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	p.render()
	go p.loop()
}

func (p *ProgressPrinter) loop() {
	defer close(p.doneCh)
	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.render()
		}
	}
}

func (p *ProgressPrinter) render() {
	phase := p.phase.Load().(string)
	elapsed := time.Since(p.started)
	seconds := int(elapsed.Seconds())
	if p.duration > 0 {
		remaining := p.duration - elapsed
		if remaining < 0 {
			remaining = 0
		}
		// Round to the nearest whole second
		seconds = int(remaining.Seconds() + 0.5)
	}
	if seconds == 0 && p.duration == 0 {
		fmt.Fprintf(os.Stderr, "\r%s (%s...)   ", p.prefix, phase)
		return
	}
	fmt.Fprintf(os.Stderr, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
}

// Callback returns a phase-update function suitable for the scanner and
// inspector progress hooks.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
	}
}

// Stop ends rendering and clears the line. Safe to call multiple times and
// before Start.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		if !p.active {
			return
		}
		close(p.stopCh)
		<-p.doneCh
		fmt.Fprint(os.Stderr, clearLineSequence)
	})
}
