package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter redraws a single status line with the current phase and a
// seconds counter until one of its stop phases is reached or Stop is called.
//
//	p := NewProgressPrinter(w, "Connecting to X", "Connecting", "Connected", "Failed")
//	p.Start()
//	defer p.Stop()
//	s.ConnectAndWait(ctx, addr, p.Callback())
//
// A ProgressPrinter is single-use.
type ProgressPrinter struct {
	out        io.Writer
	prefix     string
	phase      atomic.Value // string
	stopPhases map[string]struct{}
	countdown  time.Duration // zero counts up

	mu       sync.Mutex // serializes writes to out
	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewProgressPrinter creates a progress printer that counts up (shows elapsed time).
func NewProgressPrinter(out io.Writer, prefix, phase string, stopPhases ...string) *ProgressPrinter {
	p := &ProgressPrinter{
		out:        out,
		prefix:     prefix,
		stopPhases: make(map[string]struct{}, len(stopPhases)),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, s := range stopPhases {
		p.stopPhases[s] = struct{}{}
	}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a progress printer that counts down from duration.
func NewCountdownProgressPrinter(out io.Writer, prefix, phase string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	p := NewProgressPrinter(out, prefix, phase, stopPhases...)
	p.countdown = duration
	return p
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	start := time.Now()
	p.print(p.phase.Load().(string), 0)

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				phase := p.phase.Load().(string)
				if _, stop := p.stopPhases[phase]; stop {
					return
				}
				p.print(phase, p.seconds(time.Since(start)))
			}
		}
	}()
}

func (p *ProgressPrinter) seconds(elapsed time.Duration) int {
	if p.countdown == 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.countdown - elapsed
	if remaining <= 0 {
		return 0
	}
	// round to the nearest second, 3.7s -> 4s
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) print(phase string, seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// Callback returns a progress callback that updates the phase. Reaching a stop
// phase stops the printer. Safe for concurrent use.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// Stop stops the progress display and clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.started.Load() {
			<-p.done
		}
		p.mu.Lock()
		fmt.Fprint(p.out, clearLineSequence)
		p.mu.Unlock()
	})
}
