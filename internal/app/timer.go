package app

import (
	"sync"
	"time"
)

// TimerEvent is emitted once per elapsed second. The last event of a countdown has Expired set.
type TimerEvent struct {
	Generation uint64
	Remaining  int
	Expired    bool
}

// TickerFunc starts a ticker and returns its channel and a stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// CountdownTimer counts down a per-question limit in one-second ticks and delivers
// TimerEvents to a single sink. Each Start cancels the previous countdown and bumps
// the generation, so consumers can discard events from a cancelled countdown.
type CountdownTimer struct {
	sink      chan<- TimerEvent
	newTicker TickerFunc
	interval  time.Duration

	mu         sync.Mutex
	generation uint64
	stop       chan struct{}
}

func NewCountdownTimer(sink chan<- TimerEvent, newTicker TickerFunc) *CountdownTimer {
	if newTicker == nil {
		newTicker = realTicker
	}
	return &CountdownTimer{
		sink:      sink,
		newTicker: newTicker,
		interval:  time.Second,
	}
}

// Start resets the countdown to limit seconds and returns its generation.
func (t *CountdownTimer) Start(limit int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.generation++
	stop := make(chan struct{})
	t.stop = stop

	ticks, stopTicker := t.newTicker(t.interval)
	go t.run(t.generation, limit, ticks, stopTicker, stop)
	return t.generation
}

// Stop halts the running countdown without emitting expiry.
func (t *CountdownTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *CountdownTimer) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *CountdownTimer) run(generation uint64, limit int, ticks <-chan time.Time, stopTicker func(), stop <-chan struct{}) {
	defer stopTicker()
	remaining := limit
	for remaining > 0 {
		select {
		case <-stop:
			return
		case <-ticks:
		}
		remaining--
		ev := TimerEvent{Generation: generation, Remaining: remaining, Expired: remaining == 0}
		select {
		case t.sink <- ev:
		case <-stop:
			return
		}
	}
}
