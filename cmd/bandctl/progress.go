package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/bandlink/internal/stream"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows the current phase with elapsed seconds on one line.
// Start may be called once; Stop is safe to call any number of times.
type ProgressPrinter struct {
	out        io.Writer
	prefix     string
	phase      atomic.Value // string
	detail     atomic.Value // string
	stopPhases map[string]struct{}
	startTime  time.Time

	mu       sync.Mutex
	started  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewProgressPrinter creates a printer writing to out. Reaching one of
// stopPhases through Callback stops it.
func NewProgressPrinter(out io.Writer, prefix string, phase string, stopPhases ...string) *ProgressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &ProgressPrinter{
		out:        out,
		prefix:     prefix,
		stopPhases: stopSet,
	}
	p.phase.Store(phase)
	p.detail.Store("")
	return p
}

// Start begins redrawing the progress line in the background
func (p *ProgressPrinter) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		panic("ProgressPrinter.Start called more than once")
	}
	p.started = true
	p.startTime = time.Now()
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})

	p.print()
	go p.loop(p.stopChan, p.done)
}

func (p *ProgressPrinter) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.print()
		}
	}
}

func (p *ProgressPrinter) print() {
	phase := p.phase.Load().(string)
	detail := p.detail.Load().(string)
	seconds := int(time.Since(p.startTime).Seconds())
	if detail != "" {
		fmt.Fprintf(p.out, "\r%s (%s %s, %ds)   ", p.prefix, phase, detail, seconds)
		return
	}
	fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
}

// Callback returns a phase setter; setting a stop phase stops the printer
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		p.detail.Store("")
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// Transfer adapts the printer to transfer progress reports
func (p *ProgressPrinter) Transfer() stream.ProgressFunc {
	setPhase := p.Callback()
	return func(phase string, sent, total int) {
		setPhase(phase)
		if total > 0 {
			p.detail.Store(fmt.Sprintf("%d/%d, %d%%", sent, total, sent*100/total))
		}
	}
}

// Stop stops the redraw loop and clears the line
func (p *ProgressPrinter) Stop() {
	p.mu.Lock()
	stop, done := p.stopChan, p.done
	p.stopChan = nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	fmt.Fprint(p.out, clearLineSequence)
}
