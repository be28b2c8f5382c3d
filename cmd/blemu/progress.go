package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/srg/blemu/internal/peripheral"
)

const (
	progressRedraw = 100 * time.Millisecond
	clearLine      = "\r\033[K"
)

// Progress phases that are not session states.
const (
	phaseWaitingForBluetooth = "waiting for Bluetooth"
	phaseFailed              = "failed"
)

// SessionProgress keeps a one-line "<label> (<phase> Ns)" indicator on a terminal
// while a session comes up. Observe feeds it session snapshots; it clears the line
// on its own once the session advertises, fails or goes back to idle.
//
// Start may be called once. Stop must follow it, or the redraw goroutine leaks.
type SessionProgress struct {
	out   io.Writer
	label string

	mu      sync.Mutex
	phase   string
	since   time.Time
	running bool
	left    bool // the session has been seen outside Idle
	quit    chan struct{}
	exited  chan struct{}
}

// NewSessionProgress creates an indicator that shows phase until the first snapshot arrives.
func NewSessionProgress(out io.Writer, label, phase string) *SessionProgress {
	return &SessionProgress{out: out, label: label, phase: phase}
}

// Start draws the first line and begins redrawing it with the elapsed time.
func (p *SessionProgress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quit != nil {
		panic("SessionProgress started twice")
	}
	p.quit = make(chan struct{})
	p.exited = make(chan struct{})
	p.since = time.Now()
	p.running = true
	p.drawLocked()

	go p.redraw(p.quit, p.exited)
}

func (p *SessionProgress) redraw(quit <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	t := time.NewTicker(progressRedraw)
	defer t.Stop()
	for {
		select {
		case <-quit:
			return
		case <-t.C:
			p.mu.Lock()
			p.drawLocked()
			p.mu.Unlock()
		}
	}
}

func (p *SessionProgress) drawLocked() {
	if !p.running {
		return
	}
	if secs := int(time.Since(p.since).Seconds()); secs > 0 {
		_, _ = fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.label, p.phase, secs)
		return
	}
	_, _ = fmt.Fprintf(p.out, "\r%s (%s...)   ", p.label, p.phase)
}

// Observe records the phase of snap and stops the indicator once the session
// settles. It is a peripheral observer and safe for concurrent use.
func (p *SessionProgress) Observe(snap peripheral.Snapshot) {
	phase, settled := phaseOf(snap)
	p.mu.Lock()
	p.phase = phase
	if snap.State != peripheral.Idle {
		p.left = true
	} else if snap.LastError == nil && !p.left {
		// not started yet
		settled = false
	}
	p.mu.Unlock()
	if settled {
		p.Stop()
	}
}

// Phase returns the phase last shown.
func (p *SessionProgress) Phase() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Stop ends redrawing and clears the line. Calls after the first are no-ops.
func (p *SessionProgress) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.quit)
	exited := p.exited
	p.mu.Unlock()

	<-exited
	_, _ = fmt.Fprint(p.out, clearLine)
}

// phaseOf names the phase of snap and reports whether the session has settled.
func phaseOf(snap peripheral.Snapshot) (phase string, settled bool) {
	switch {
	case !snap.Ready:
		return phaseWaitingForBluetooth, false
	case snap.State == peripheral.Idle && snap.LastError != nil:
		return phaseFailed, true
	default:
		return snap.StateName, snap.State == peripheral.Idle || snap.State == peripheral.Advertising
	}
}
