// ============================================================================
// sysmasterd Event Dispatcher
// ============================================================================
//
// Package: internal/dispatch
// File: dispatch.go
// Purpose: The single event-loop owner from spec §5: one goroutine, signals
//          first, then ready I/O, then timers, then deferred work, draining
//          priority-ordered exactly as original_source's epoll.rs orders its
//          event sources (signals > I/O > timers > defer > post).
//
// Grounded on internal/raft/raft.go's electionTimer/heartbeatTimer select
// loops (that package's single-goroutine state machine over *time.Timer and
// *time.Ticker channels is the closest teacher analog to an event loop),
// generalized from two fixed, named timers to an arbitrary registered set of
// signal/IO/timer sources plus a deferred-work tail queue.
//
// ============================================================================

package dispatch

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"time"
)

var log = slog.With("component", "dispatch")

type ioSource struct {
	name    string
	ready   <-chan struct{}
	onReady func()
}

type timerSource struct {
	id      string
	timer   *time.Timer
	ticker  *time.Ticker
	onFire  func()
	channel <-chan time.Time
}

// Dispatcher is the process's single event loop: register signal handlers,
// I/O-ready channels, and timers/tickers with it, then call Run once. Only
// Run's goroutine ever touches the registered callbacks, honoring the
// one-thread rule in spec §5.
type Dispatcher struct {
	mu sync.Mutex

	sigCh    chan os.Signal
	onSignal func(os.Signal)

	io     []*ioSource
	timers []*timerSource

	deferred []func()

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates an idle Dispatcher. Register sources, then call Run.
func New() *Dispatcher {
	return &Dispatcher{
		sigCh:  make(chan os.Signal, 16),
		stopCh: make(chan struct{}),
	}
}

// WatchSignals arranges for onSignal to be invoked, from the Run goroutine,
// each time one of sigs is received. Only one handler may be installed;
// a later call replaces it.
func (d *Dispatcher) WatchSignals(onSignal func(os.Signal), sigs ...os.Signal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSignal = onSignal
	signal.Notify(d.sigCh, sigs...)
}

// RegisterIO adds an I/O-ready source: whenever ready has a pending value,
// onReady runs on the dispatcher goroutine. name is used only for
// Unregister and logging.
func (d *Dispatcher) RegisterIO(name string, ready <-chan struct{}, onReady func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.io = append(d.io, &ioSource{name: name, ready: ready, onReady: onReady})
}

// UnregisterIO removes a previously registered I/O source by name.
func (d *Dispatcher) UnregisterIO(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.io {
		if s.name == name {
			d.io = append(d.io[:i], d.io[i+1:]...)
			return
		}
	}
}

// RegisterTicker runs onFire every interval until CancelTimer(id) is called.
func (d *Dispatcher) RegisterTicker(id string, interval time.Duration, onFire func()) {
	t := time.NewTicker(interval)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timers = append(d.timers, &timerSource{id: id, ticker: t, onFire: onFire, channel: t.C})
}

// RegisterTimer runs onFire once after delay. It auto-unregisters itself
// once fired, matching spec §5's SIGTERM-then-SIGKILL grace-window timers.
func (d *Dispatcher) RegisterTimer(id string, delay time.Duration, onFire func()) {
	t := time.NewTimer(delay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timers = append(d.timers, &timerSource{id: id, timer: t, onFire: onFire, channel: t.C})
}

// CancelTimer stops and removes a registered timer or ticker by id.
func (d *Dispatcher) CancelTimer(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, ts := range d.timers {
		if ts.id == id {
			if ts.ticker != nil {
				ts.ticker.Stop()
			}
			if ts.timer != nil {
				ts.timer.Stop()
			}
			d.timers = append(d.timers[:i], d.timers[i+1:]...)
			return
		}
	}
}

// Defer queues fn to run after every higher-priority source has been
// drained this tick — spec §5's "defer" priority band, one step above idle.
func (d *Dispatcher) Defer(fn func()) {
	d.mu.Lock()
	d.deferred = append(d.deferred, fn)
	d.mu.Unlock()
}

// Stop ends the Run loop at its next iteration boundary. Safe to call more
// than once and from any goroutine.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Run drives the event loop until ctx is cancelled or Stop is called. Each
// iteration polls, in strict priority order: pending signals, ready I/O,
// fired timers, one deferred callback; only when all four are empty does it
// block waiting for the next thing to become ready.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}

		if d.pollSignal() {
			continue
		}
		if d.pollIO() {
			continue
		}
		if d.pollTimers() {
			continue
		}
		if d.runOneDeferred() {
			continue
		}

		d.blockForNext(ctx)
	}
}

func (d *Dispatcher) pollSignal() bool {
	select {
	case sig := <-d.sigCh:
		d.mu.Lock()
		handler := d.onSignal
		d.mu.Unlock()
		if handler != nil {
			handler(sig)
		} else {
			log.Warn("signal received with no handler registered", "signal", sig)
		}
		return true
	default:
		return false
	}
}

func (d *Dispatcher) pollIO() bool {
	d.mu.Lock()
	sources := append([]*ioSource(nil), d.io...)
	d.mu.Unlock()

	for _, s := range sources {
		select {
		case <-s.ready:
			s.onReady()
			return true
		default:
		}
	}
	return false
}

func (d *Dispatcher) pollTimers() bool {
	d.mu.Lock()
	timers := append([]*timerSource(nil), d.timers...)
	d.mu.Unlock()

	for _, ts := range timers {
		select {
		case <-ts.channel:
			ts.onFire()
			if ts.timer != nil {
				d.CancelTimer(ts.id)
			}
			return true
		default:
		}
	}
	return false
}

func (d *Dispatcher) runOneDeferred() bool {
	d.mu.Lock()
	if len(d.deferred) == 0 {
		d.mu.Unlock()
		return false
	}
	fn := d.deferred[0]
	d.deferred = d.deferred[1:]
	d.mu.Unlock()

	fn()
	return true
}

// blockForNext waits until something becomes ready rather than busy-polling.
// The set of channels is only known at runtime (sources register and
// unregister dynamically), so reflect.Select stands in for a static select
// statement here; the stdlib has no other way to wait on a dynamic channel
// set without either busy-polling or one extra goroutine per source.
func (d *Dispatcher) blockForNext(ctx context.Context) {
	d.mu.Lock()
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(d.stopCh)},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(d.sigCh)},
	}
	for _, s := range d.io {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.ready)})
	}
	for _, ts := range d.timers {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ts.channel)})
	}
	d.mu.Unlock()

	// No timer at all and no other source yet: avoid blocking forever with
	// only ctx/stopCh registered would be correct too, but a short ceiling
	// keeps a freshly constructed, not-yet-wired Dispatcher from stalling
	// tests that call Run without registering anything.
	if len(cases) == 3 {
		timeout := time.NewTimer(50 * time.Millisecond)
		defer timeout.Stop()
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timeout.C)})
	}

	reflect.Select(cases)
}
