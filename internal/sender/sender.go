// ABOUTME: DataSender wires the dispatch queue, router, retry subsystem and completion executor
// ABOUTME: Producers call Submit/Request*; everything after admission is asynchronous

package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/2389/coven-transport/internal/channel"
	"github.com/2389/coven-transport/internal/wire"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultQueueSize         = 5 * 1024
	DefaultRetryDelay        = 10 * time.Second
	DefaultMaxAttempts       = 3
	DefaultCallbackWorkers   = 1
	DefaultCallbackQueueSize = 1000
	DefaultMaxInFlight       = 1024
)

// Config tunes a DataSender.
type Config struct {
	Name              string
	QueueSize         int
	RetryDelay        time.Duration
	MaxAttempts       int // total calls per request, first included
	CallbackWorkers   int
	CallbackQueueSize int
	MaxInFlight       int           // calls awaiting a response
	CallTimeout       time.Duration // 0 leaves deadlines to the channel
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.CallbackWorkers <= 0 {
		c.CallbackWorkers = DefaultCallbackWorkers
	}
	if c.CallbackQueueSize <= 0 {
		c.CallbackQueueSize = DefaultCallbackQueueSize
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
	return c
}

// Service is a component whose lifetime is bound to the sender, such as
// the command stream client.
type Service interface {
	Start(ctx context.Context)
	Stop()
}

// Option configures a DataSender.
type Option func(*DataSender)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DataSender) { s.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *DataSender) { s.stats = m }
}

// WithService starts svc with the sender and stops it first on Stop.
func WithService(svc Service) Option {
	return func(s *DataSender) { s.services = append(s.services, svc) }
}

// pendingCall is one attempt in flight. Exactly one of envelope and
// listener is set.
type pendingCall struct {
	method   Method
	msg      wire.Message
	envelope *Envelope
	listener CompletionListener
}

// DataSender ships telemetry to the collector over one channel.
type DataSender struct {
	cfg      Config
	channel  *channel.Manager
	router   *Router
	queue    *AsyncQueue[Request]
	timer    *Timer
	retry    *retrier
	exec     *executor
	inflight *semaphore.Weighted
	services []Service

	ctx    context.Context
	cancel context.CancelFunc

	stopped  atomic.Bool
	stopOnce sync.Once

	logger *slog.Logger
	stats  Metrics
}

// New starts a sender on ch. The sender owns ch from here on and closes it
// in Stop.
func New(cfg Config, ch *channel.Manager, converter MessageConverter, opts ...Option) (*DataSender, error) {
	if ch == nil {
		return nil, errors.New("channel manager is required")
	}
	cfg = cfg.withDefaults()

	s := &DataSender{
		cfg:     cfg,
		channel: ch,
		stats:   nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("component", "sender", "name", cfg.Name)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.router = NewRouter(converter, ch.Conn())
	s.timer = NewTimer()
	s.exec = newExecutor(cfg.CallbackWorkers, cfg.CallbackQueueSize, s.logger)
	s.inflight = semaphore.NewWeighted(int64(cfg.MaxInFlight))
	s.retry = newRetrier(cfg.RetryDelay, s.timer, s.resend, s.stats, s.logger)
	s.queue = NewAsyncQueue(cfg.QueueSize, s.dispatch, s.logger)

	for _, svc := range s.services {
		svc.Start(s.ctx)
	}

	s.logger.Info("data sender started",
		"endpoint", ch.Endpoint(),
		"queue_size", cfg.QueueSize,
		"retry_delay", cfg.RetryDelay,
		"max_attempts", cfg.MaxAttempts,
	)
	return s, nil
}

// Submit admits req to the dispatch queue. false means the request was
// dropped: the queue is full, the sender stopped, or req is invalid. No
// retry is owed for a dropped request.
func (s *DataSender) Submit(req Request) bool {
	if s.stopped.Load() {
		s.stats.Dropped(DropStopped)
		return false
	}
	if err := req.validate(); err != nil {
		s.logger.Warn("rejecting request", "error", err)
		s.stats.Dropped(DropInvalid)
		return false
	}

	if err := s.queue.Offer(req); err != nil {
		reason := DropQueueFull
		if errors.Is(err, ErrStopped) {
			reason = DropStopped
		}
		s.logger.Debug("request not admitted", "message", label(req.Payload), "error", err)
		s.stats.Dropped(reason)
		return false
	}
	s.stats.Accepted()
	return true
}

// Request submits payload with the configured attempt ceiling.
func (s *DataSender) Request(payload any) bool {
	return s.Submit(Request{Payload: payload, MaxAttempts: s.cfg.MaxAttempts})
}

// RequestWithRetry submits payload with its own attempt ceiling.
func (s *DataSender) RequestWithRetry(payload any, maxAttempts int) bool {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return s.Submit(Request{Payload: payload, MaxAttempts: maxAttempts})
}

// RequestWithListener submits payload for a single attempt whose outcome
// goes to listener. The listener is not called when the request is dropped
// before a call is issued.
func (s *DataSender) RequestWithListener(payload any, listener CompletionListener) bool {
	if listener == nil {
		return s.Request(payload)
	}
	return s.Submit(Request{Payload: payload, Listener: listener})
}

// QueueLen reports requests waiting in the dispatch queue.
func (s *DataSender) QueueLen() int { return s.queue.Len() }

// RetryLen reports envelopes waiting for the next retry cycle.
func (s *DataSender) RetryLen() int { return s.retry.Len() }

// Stop shuts the sender down: no more submissions, bound services stopped,
// queue drained of its in-flight item, retry timers cancelled, channel
// closed, completion executor halted. In-flight retries are abandoned.
// Stop must not be called from a CompletionListener.
func (s *DataSender) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.cancel()

		for _, svc := range s.services {
			svc.Stop()
		}
		s.queue.Stop()
		s.retry.Stop()
		if n := s.timer.Stop(); n > 0 {
			s.logger.Info("retry timers cancelled", "count", n)
		}
		if err := s.channel.Close(); err != nil {
			s.logger.Warn("closing channel", "error", err)
		}
		s.exec.Stop()

		s.logger.Info("data sender stopped")
	})
}

// dispatch runs on the queue consumer: convert, route, issue.
func (s *DataSender) dispatch(req Request) {
	msg, err := s.router.Convert(req.Payload)
	if err != nil {
		s.logger.Warn("dropping message", "message", label(req.Payload), "error", err)
		s.stats.Dropped(DropConversion)
		return
	}
	method, err := s.router.Route(msg)
	if err != nil {
		s.logger.Warn("dropping message", "message", label(req.Payload), "error", err)
		s.stats.Dropped(DropUnsupported)
		return
	}

	call := pendingCall{method: method, msg: msg}
	if req.Listener != nil {
		call.listener = req.Listener
	} else {
		call.envelope = &Envelope{
			Message:     msg,
			Method:      method,
			Attempt:     1,
			MaxAttempts: req.attempts(),
			Label:       label(req.Payload),
		}
	}
	s.issue(call)
}

// resend re-issues an envelope from a retry cycle without re-converting.
func (s *DataSender) resend(env *Envelope) {
	s.issue(pendingCall{method: env.Method, msg: env.Message, envelope: env})
}

// issue puts the call on the wire from the calling goroutine, so calls leave
// in the order they were issued, and collects the response elsewhere. It
// blocks while MaxInFlight calls are outstanding.
func (s *DataSender) issue(call pendingCall) {
	if err := s.inflight.Acquire(s.ctx, 1); err != nil {
		s.logger.Debug("call not issued, sender stopping", "method", call.method.Name)
		return
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.CallTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	start := time.Now()
	pending, startErr := call.method.Start(ctx, call.msg)

	go func() {
		defer s.inflight.Release(1)
		defer cancel()

		var raw *wire.RawResult
		err := startErr
		if err == nil {
			raw, err = pending.Finish()
		}
		elapsed := time.Since(start)

		accepted := s.exec.Submit(func() {
			outcome := classify(call.method.Name, raw, err)
			s.stats.CallCompleted(call.method.Name, outcome.Kind, elapsed)
			s.decide(call, outcome)
		})
		if !accepted {
			s.logger.Debug("completion abandoned, sender stopped", "method", call.method.Name)
		}
	}()
}

// decide is the only place an outcome turns into an action.
//
//	Success                                done
//	TransportFailure, ApplicationFailure   retry until the ceiling
//	MalformedResponse                      logged and dropped
//
// Listener requests hand every outcome to the listener instead.
func (s *DataSender) decide(call pendingCall, o Outcome) {
	if call.listener != nil {
		call.listener.OnComplete(o)
		return
	}

	env := call.envelope
	switch o.Kind {
	case Success:
		s.logger.Debug("request succeeded", "message", env.Label, "method", o.Method, "attempt", env.Attempt)
	case TransportFailure, ApplicationFailure:
		s.logger.Info("request failed",
			"message", env.Label,
			"method", o.Method,
			"attempt", env.Attempt,
			"outcome", o.Kind,
			"error", o.Err,
		)
		s.retry.Schedule(env)
	case MalformedResponse:
		s.logger.Warn("invalid response, not retrying",
			"message", env.Label,
			"method", o.Method,
			"error", o.Err,
		)
		s.stats.Dropped(DropMalformed)
	}
}
