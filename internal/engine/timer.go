package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTickInterval is how often a running race publishes its countdown.
const DefaultTickInterval = time.Second

type armedTimer struct {
	cancel context.CancelFunc
}

// timerArena owns the countdown goroutine of every running race. At most one
// timer is armed per race; arming again replaces the previous one.
type timerArena struct {
	mu     sync.Mutex
	timers map[string]*armedTimer
	closed bool
	wg     sync.WaitGroup
}

func newTimerArena() *timerArena {
	return &timerArena{timers: make(map[string]*armedTimer)}
}

// arm starts a timer for raceID that fires onExpire once deadline passes,
// calling onTick every tick until then. A non-positive tick disables ticks.
// onExpire is not called if the timer is cancelled first.
func (a *timerArena) arm(raceID string, deadline time.Time, tick time.Duration, onTick, onExpire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if prev, ok := a.timers[raceID]; ok {
		prev.cancel()
	} else {
		armedTimers.Inc()
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	t := &armedTimer{cancel: cancel}
	a.timers[raceID] = t

	a.wg.Go(func() {
		defer cancel()

		var ticks <-chan time.Time
		if tick > 0 {
			ticker := time.NewTicker(tick)
			defer ticker.Stop()
			ticks = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) && a.release(raceID, t) {
					onExpire()
				}
				return
			case <-ticks:
				onTick()
			}
		}
	})
}

// release removes t from the arena if it is still the armed timer for
// raceID. It reports whether the caller now owns the expiry.
func (a *timerArena) release(raceID string, t *armedTimer) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timers[raceID] != t {
		return false
	}
	delete(a.timers, raceID)
	armedTimers.Dec()
	return true
}

// cancel stops the timer for raceID without firing it. It reports whether a
// timer was armed.
func (a *timerArena) cancel(raceID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.timers[raceID]
	if !ok {
		return false
	}
	t.cancel()
	delete(a.timers, raceID)
	armedTimers.Dec()
	return true
}

// armed reports whether raceID has a pending timer.
func (a *timerArena) armed(raceID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.timers[raceID]
	return ok
}

// close cancels every timer and waits for their goroutines to return,
// including any expiry already running.
func (a *timerArena) close() {
	a.mu.Lock()
	a.closed = true
	for id, t := range a.timers {
		t.cancel()
		delete(a.timers, id)
		armedTimers.Dec()
	}
	a.mu.Unlock()
	a.wg.Wait()
}
