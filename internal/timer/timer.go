package timer

import (
	"sync"
	"time"
)

// Timer is a single-owner, re-armable, cancelable timer. Every Arm bumps a
// generation number; the callback receives it so the owner can recognise a
// fire that was already queued when the timer got re-armed or disarmed.
type Timer struct {
	mu    sync.Mutex
	t     *time.Timer
	gen   uint64
	armed bool
}

// Arm schedules fn after d, replacing any pending schedule.
func (t *Timer) Arm(d time.Duration, fn func(gen uint64)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.armed = true
	t.t = time.AfterFunc(d, func() {
		if t.Live(gen) {
			fn(gen)
		}
	})
	return gen
}

// Disarm cancels the pending schedule, if any. Safe to call repeatedly.
func (t *Timer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.gen++
}

// Live reports whether gen belongs to the current, still armed schedule.
func (t *Timer) Live(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed && t.gen == gen
}

// Settle marks a delivered fire as consumed so it is not live any more.
func (t *Timer) Settle(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen == gen {
		t.armed = false
		t.t = nil
	}
}

func (t *Timer) stopLocked() {
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	t.armed = false
}
