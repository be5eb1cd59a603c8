// ABOUTME: Instance-owned one-shot timer service for retry cycles
// ABOUTME: Stop cancels pending callbacks and waits for running ones

package sender

import (
	"sync"
	"time"
)

// Timer schedules one-shot callbacks and tracks them so Stop can release
// everything the instance scheduled.
type Timer struct {
	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	stopped bool
	running sync.WaitGroup
}

// NewTimer returns an empty timer service.
func NewTimer() *Timer {
	return &Timer{pending: make(map[*time.Timer]struct{})}
}

// AfterFunc runs f after d. It returns false, without scheduling, once the
// timer has been stopped.
func (t *Timer) AfterFunc(d time.Duration, f func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}

	t.running.Add(1)
	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		defer t.running.Done()
		t.mu.Lock()
		delete(t.pending, tm)
		t.mu.Unlock()
		f()
	})
	t.pending[tm] = struct{}{}
	return true
}

// Pending reports callbacks scheduled but not yet started.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop cancels pending callbacks, rejects new ones and waits for callbacks
// already running. It returns how many callbacks were cancelled. Stop must
// not be called from inside a callback.
func (t *Timer) Stop() int {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return 0
	}
	t.stopped = true
	cancelled := 0
	for tm := range t.pending {
		if tm.Stop() {
			cancelled++
			t.running.Done()
		}
		delete(t.pending, tm)
	}
	t.mu.Unlock()

	t.running.Wait()
	return cancelled
}
