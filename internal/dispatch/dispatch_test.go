package dispatch

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_SignalHandlerInvoked(t *testing.T) {
	d := New()
	var mu sync.Mutex
	var got os.Signal
	done := make(chan struct{})

	d.WatchSignals(func(sig os.Signal) {
		mu.Lock()
		got = sig
		mu.Unlock()
		close(done)
	}, os.Interrupt)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx)

	// deliver directly to the internal channel rather than syscall.Kill, to
	// keep the test hermetic.
	d.sigCh <- os.Interrupt

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("signal handler never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, os.Interrupt, got)
}

func TestDispatcher_IOSourceFiresOnReady(t *testing.T) {
	d := New()
	ready := make(chan struct{}, 1)
	fired := make(chan struct{})

	d.RegisterIO("test-io", ready, func() { close(fired) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx)

	ready <- struct{}{}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("io callback never fired")
	}
}

func TestDispatcher_UnregisterIOStopsFurtherCallbacks(t *testing.T) {
	d := New()
	ready := make(chan struct{}, 1)
	var count int
	var mu sync.Mutex

	d.RegisterIO("flaky", ready, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	d.UnregisterIO("flaky")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go d.Run(ctx)

	ready <- struct{}{}
	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestDispatcher_TimerFiresOnceAndAutoUnregisters(t *testing.T) {
	d := New()
	fired := make(chan struct{})
	d.RegisterTimer("once", 10*time.Millisecond, func() { close(fired) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("one-shot timer never fired")
	}

	d.mu.Lock()
	n := len(d.timers)
	d.mu.Unlock()
	assert.Equal(t, 0, n, "one-shot timer should remove itself after firing")
}

func TestDispatcher_TickerFiresRepeatedly(t *testing.T) {
	d := New()
	hits := make(chan struct{}, 8)
	d.RegisterTicker("heartbeat", 10*time.Millisecond, func() {
		select {
		case hits <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go d.Run(ctx)

	require.Eventually(t, func() bool { return len(hits) >= 2 }, time.Second, 5*time.Millisecond)
	d.CancelTimer("heartbeat")
}

func TestDispatcher_DeferredRunsAfterRegistration(t *testing.T) {
	d := New()
	done := make(chan struct{})
	d.Defer(func() { close(done) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deferred callback never ran")
	}
}

func TestDispatcher_StopEndsRunPromptly(t *testing.T) {
	d := New()
	doneCh := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(doneCh)
	}()

	d.Stop()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestDispatcher_SignalPriorityOverIOAndTimers(t *testing.T) {
	d := New()
	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	ready := make(chan struct{}, 1)
	d.RegisterIO("io", ready, func() { record("io") })
	d.RegisterTimer("timer", time.Millisecond, func() { record("timer") })
	d.WatchSignals(func(os.Signal) { record("signal") }, os.Interrupt)

	ready <- struct{}{}
	time.Sleep(5 * time.Millisecond) // let the timer fire before Run starts draining
	d.sigCh <- os.Interrupt

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, order)
	assert.Equal(t, "signal", order[0], "signals must drain before io or timers in the same tick")
}
