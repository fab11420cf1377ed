package app

import (
	"testing"
	"time"
)

// manualClock hands out tickers that only fire when the test says so.
type manualClock struct {
	created chan *manualTicker
}

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

func newManualClock() *manualClock {
	return &manualClock{created: make(chan *manualTicker, 64)}
}

func (c *manualClock) ticker(time.Duration) (<-chan time.Time, func()) {
	tk := &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	c.created <- tk
	return tk.ch, func() { close(tk.stopped) }
}

func (c *manualClock) next(t *testing.T) *manualTicker {
	t.Helper()
	select {
	case tk := <-c.created:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatalf("no ticker started")
		return nil
	}
}

func (tk *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case tk.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown not listening for ticks")
	}
}

func (tk *manualTicker) waitStopped(t *testing.T) {
	t.Helper()
	select {
	case <-tk.stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("ticker was not stopped")
	}
}

func readEvent(t *testing.T, sink <-chan TimerEvent) TimerEvent {
	t.Helper()
	select {
	case ev := <-sink:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no timer event")
		return TimerEvent{}
	}
}

func TestCountdownEmitsSingleExpiry(t *testing.T) {
	clock := newManualClock()
	sink := make(chan TimerEvent, 8)
	timer := NewCountdownTimer(sink, clock.ticker)

	gen := timer.Start(3)
	tk := clock.next(t)

	for want := 2; want >= 0; want-- {
		tk.tick(t)
		ev := readEvent(t, sink)
		if ev.Generation != gen || ev.Remaining != want {
			t.Fatalf("expected remaining %d gen %d, got %+v", want, gen, ev)
		}
		if ev.Expired != (want == 0) {
			t.Fatalf("unexpected expiry flag at remaining %d", want)
		}
	}
	tk.waitStopped(t)

	select {
	case ev := <-sink:
		t.Fatalf("countdown kept running after expiry: %+v", ev)
	default:
	}
}

func TestCountdownStopSuppressesExpiry(t *testing.T) {
	clock := newManualClock()
	sink := make(chan TimerEvent, 8)
	timer := NewCountdownTimer(sink, clock.ticker)

	timer.Start(1)
	tk := clock.next(t)
	timer.Stop()
	tk.waitStopped(t)

	select {
	case tk.ch <- time.Now():
		t.Fatalf("stopped countdown still consumed a tick")
	case <-time.After(50 * time.Millisecond):
	}
	if len(sink) != 0 {
		t.Fatalf("stopped countdown emitted %d events", len(sink))
	}
}

func TestCountdownRestartCancelsPrevious(t *testing.T) {
	clock := newManualClock()
	sink := make(chan TimerEvent, 8)
	timer := NewCountdownTimer(sink, clock.ticker)

	first := timer.Start(30)
	firstTicker := clock.next(t)
	second := timer.Start(60)
	secondTicker := clock.next(t)
	if first == second {
		t.Fatalf("restart must change generation")
	}
	firstTicker.waitStopped(t)

	secondTicker.tick(t)
	ev := readEvent(t, sink)
	if ev.Generation != second || ev.Remaining != 59 {
		t.Fatalf("expected fresh countdown from 60, got %+v", ev)
	}
	timer.Stop()
}
