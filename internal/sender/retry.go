// ABOUTME: Retry subsystem: timer-driven re-delivery of failed envelopes
// ABOUTME: At most one drain cycle is armed at a time; attempts are capped per envelope

package sender

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/coven-transport/internal/wire"
)

// Envelope tracks a wire message across attempts. Attempt counts calls
// issued so far, starting at 1 for the first call.
type Envelope struct {
	Message     wire.Message
	Method      Method
	Attempt     int
	MaxAttempts int
	Label       string
}

// Exhausted reports whether no further attempt is allowed.
func (e *Envelope) Exhausted() bool { return e.Attempt >= e.MaxAttempts }

type retrier struct {
	delay  time.Duration
	timer  *Timer
	resend func(*Envelope)
	logger *slog.Logger
	stats  Metrics

	mu    sync.Mutex
	queue []*Envelope

	active  atomic.Bool
	stopped atomic.Bool
}

func newRetrier(delay time.Duration, timer *Timer, resend func(*Envelope), stats Metrics, logger *slog.Logger) *retrier {
	return &retrier{
		delay:  delay,
		timer:  timer,
		resend: resend,
		stats:  stats,
		logger: logger,
	}
}

// Schedule queues env for the next drain cycle, or drops it when its
// attempts are used up.
func (r *retrier) Schedule(env *Envelope) {
	if r.stopped.Load() {
		r.logger.Debug("retry abandoned, sender stopped", "message", env.Label)
		return
	}
	if env.Exhausted() {
		r.logger.Warn("dropping message",
			"message", env.Label,
			"method", env.Method.Name,
			"attempts", env.Attempt,
			"error", ErrRetryExhausted,
		)
		r.stats.Dropped(DropExhausted)
		return
	}

	r.mu.Lock()
	r.queue = append(r.queue, env)
	r.mu.Unlock()
	r.stats.RetryScheduled(env.Method.Name)

	r.arm()
}

// Len reports envelopes waiting for a cycle.
func (r *retrier) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Stop abandons queued envelopes. The owning Timer is stopped separately.
func (r *retrier) Stop() {
	r.stopped.Store(true)
	r.mu.Lock()
	n := len(r.queue)
	r.queue = nil
	r.mu.Unlock()
	if n > 0 {
		r.logger.Info("retry queue abandoned", "envelopes", n)
	}
}

// arm starts a cycle unless one is already armed.
func (r *retrier) arm() {
	if !r.active.CompareAndSwap(false, true) {
		return
	}
	if !r.timer.AfterFunc(r.delay, r.drain) {
		r.active.Store(false)
	}
}

// drain re-issues the envelopes queued when the cycle fired. Envelopes that
// fail again come back through Schedule and wait for a later cycle.
func (r *retrier) drain() {
	r.mu.Lock()
	batch := r.queue
	r.queue = nil
	r.mu.Unlock()

	for _, env := range batch {
		if r.stopped.Load() {
			break
		}
		env.Attempt++
		r.logger.Debug("retrying message",
			"message", env.Label,
			"method", env.Method.Name,
			"attempt", env.Attempt,
			"max_attempts", env.MaxAttempts,
		)
		r.resend(env)
	}

	r.active.Store(false)
	// Envelopes scheduled while the flag was still set would otherwise wait
	// for an unrelated failure to arm the next cycle.
	if r.Len() > 0 {
		r.arm()
	}
}
