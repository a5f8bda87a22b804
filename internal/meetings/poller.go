package meetings

import (
	"context"
	"sync"
	"time"
)

// tickerFunc returns a tick channel and a stop function.
type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Poller runs a task immediately and then on every interval until stopped. Ticks never overlap.
//
// Suspend and Resume pause the schedule without forgetting it. None of the control methods block
// on an in-flight tick, so they are safe to call from inside the task's callbacks.
type Poller struct {
	interval time.Duration
	task     func(ctx context.Context)
	ticker   tickerFunc

	runMu sync.Mutex

	mu        sync.Mutex
	parent    context.Context
	cancel    context.CancelFunc
	started   bool
	suspended bool
}

// NewPoller builds a Poller calling task every interval.
func NewPoller(interval time.Duration, task func(ctx context.Context)) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{interval: interval, task: task, ticker: realTicker}
}

// Start begins polling. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.suspended = false
	p.parent = ctx
	p.launchLocked()
}

// Stop ends polling. A tick already running finishes but no further ticks start.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.suspended = false
	p.haltLocked()
}

// Suspend pauses a started poller.
func (p *Poller) Suspend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.suspended {
		return
	}
	p.suspended = true
	p.haltLocked()
}

// Resume restarts a suspended poller with an immediate tick.
func (p *Poller) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || !p.suspended {
		return
	}
	p.suspended = false
	p.launchLocked()
}

// Running reports whether ticks are currently scheduled.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.suspended
}

func (p *Poller) launchLocked() {
	ctx, cancel := context.WithCancel(p.parent)
	p.cancel = cancel
	ticks, stop := p.ticker(p.interval)
	go p.loop(ctx, ticks, stop)
}

func (p *Poller) haltLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Poller) loop(ctx context.Context, ticks <-chan time.Time, stop func()) {
	defer stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			p.run(ctx)
		}
	}
}

func (p *Poller) run(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	p.task(ctx)
}
