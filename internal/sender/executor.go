// ABOUTME: Bounded worker pool that runs call completions off the network goroutines
// ABOUTME: A full queue runs the task on the submitting goroutine

package sender

import (
	"log/slog"
	"sync"
)

type executor struct {
	tasks  chan func()
	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newExecutor(workers, queueSize int, logger *slog.Logger) *executor {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	e := &executor{
		tasks:  make(chan func(), queueSize),
		logger: logger,
		stopCh: make(chan struct{}),
	}
	e.wg.Add(workers)
	for range workers {
		go e.work()
	}
	return e
}

// Submit queues task. When the queue is full the caller runs it. After Stop
// the task is dropped and Submit reports false.
func (e *executor) Submit(task func()) bool {
	e.mu.RLock()
	if e.stopped {
		e.mu.RUnlock()
		return false
	}
	select {
	case e.tasks <- task:
		e.mu.RUnlock()
		return true
	default:
	}
	e.mu.RUnlock()

	e.run(task)
	return true
}

// Stop halts the workers. Queued tasks are abandoned.
func (e *executor) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()
		close(e.stopCh)
		e.wg.Wait()
		if n := len(e.tasks); n > 0 {
			e.logger.Debug("completion executor stopped with queued tasks", "abandoned", n)
		}
	})
}

func (e *executor) work() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case task := <-e.tasks:
			e.run(task)
		}
	}
}

func (e *executor) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("completion task panicked", "panic", r)
		}
	}()
	task()
}
