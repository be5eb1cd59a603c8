// ABOUTME: Bounded FIFO dispatch queue drained by a single consumer goroutine
// ABOUTME: Offer never blocks; a full queue rejects the newest item

package sender

import (
	"log/slog"
	"sync"
)

// AsyncQueue decouples producers from the send path. Items are handled one
// at a time, in the order they were offered.
type AsyncQueue[T any] struct {
	items   chan T
	handler func(T)
	logger  *slog.Logger

	mu      sync.RWMutex
	stopped bool

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewAsyncQueue starts the consumer goroutine.
func NewAsyncQueue[T any](capacity int, handler func(T), logger *slog.Logger) *AsyncQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	q := &AsyncQueue[T]{
		items:   make(chan T, capacity),
		handler: handler,
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Offer admits item or returns ErrQueueFull / ErrStopped.
func (q *AsyncQueue[T]) Offer(item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrStopped
	}
	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports the number of queued items.
func (q *AsyncQueue[T]) Len() int { return len(q.items) }

// Cap reports the queue capacity.
func (q *AsyncQueue[T]) Cap() int { return cap(q.items) }

// Stop rejects further offers, lets the item being handled finish and
// discards the rest. It returns once the consumer has exited.
func (q *AsyncQueue[T]) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()

		close(q.stopCh)
		<-q.done

		if n := len(q.items); n > 0 {
			q.logger.Info("dispatch queue stopped with pending items", "discarded", n)
		}
	})
}

func (q *AsyncQueue[T]) run() {
	defer close(q.done)
	for {
		// Prefer stop over pending work.
		select {
		case <-q.stopCh:
			return
		default:
		}

		select {
		case <-q.stopCh:
			return
		case item := <-q.items:
			q.handle(item)
		}
	}
}

func (q *AsyncQueue[T]) handle(item T) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("dispatch handler panicked", "panic", r)
		}
	}()
	q.handler(item)
}
