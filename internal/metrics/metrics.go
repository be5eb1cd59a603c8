// ABOUTME: Prometheus instruments for the agent-side sender and the collector server.
// ABOUTME: Instruments live on an instance registry so tests and binaries never share globals.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/coven-transport/internal/sender"
)

const namespace = "coven"

// Registers is the subset of a prometheus registry the instruments need.
type Registers interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Registry owns a prometheus registry for one process.
type Registry struct {
	registry *prometheus.Registry
}

// NewRegistry creates an empty registry. When withRuntime is set the Go
// runtime and process collectors are added.
func NewRegistry(withRuntime bool) *Registry {
	r := prometheus.NewRegistry()
	if withRuntime {
		r.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &Registry{registry: r}
}

// Registerer exposes the underlying registry for registration.
func (r *Registry) Registerer() Registers { return r.registry }

// Handler serves the registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// SenderMetrics implements sender.Metrics.
type SenderMetrics struct {
	accepted prometheus.Counter
	dropped  *prometheus.CounterVec
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

var _ sender.Metrics = (*SenderMetrics)(nil)

// NewSenderMetrics registers the sender instruments under the given sender
// name, which becomes a constant label.
func NewSenderMetrics(reg Registers, name string) *SenderMetrics {
	labels := prometheus.Labels{"sender": name}
	m := &SenderMetrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "sender",
			Name:        "accepted_total",
			Help:        "Requests accepted into the dispatch queue.",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "sender",
			Name:        "dropped_total",
			Help:        "Requests that left the sender without success, by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "sender",
			Name:        "calls_total",
			Help:        "Completed unary calls by method and outcome.",
			ConstLabels: labels,
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "sender",
			Name:        "call_duration_seconds",
			Help:        "Latency of unary calls from issue to completion.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "sender",
			Name:        "retries_scheduled_total",
			Help:        "Failed calls put on the retry queue.",
			ConstLabels: labels,
		}, []string{"method"}),
	}
	reg.MustRegister(m.accepted, m.dropped, m.calls, m.duration, m.retries)
	return m
}

func (m *SenderMetrics) Accepted() { m.accepted.Inc() }

func (m *SenderMetrics) Dropped(reason sender.DropReason) {
	m.dropped.WithLabelValues(string(reason)).Inc()
}

func (m *SenderMetrics) CallCompleted(method string, kind sender.OutcomeKind, elapsed time.Duration) {
	m.calls.WithLabelValues(method, kind.String()).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *SenderMetrics) RetryScheduled(method string) {
	m.retries.WithLabelValues(method).Inc()
}

// Depths reports queue occupancy as gauges. Both functions are sampled at
// scrape time.
func Depths(reg Registers, name string, queueLen, retryLen func() int) {
	labels := prometheus.Labels{"sender": name}
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "sender",
			Name:        "queue_length",
			Help:        "Requests waiting in the dispatch queue.",
			ConstLabels: labels,
		}, func() float64 { return float64(queueLen()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "sender",
			Name:        "retry_length",
			Help:        "Requests waiting for the next retry cycle.",
			ConstLabels: labels,
		}, func() float64 { return float64(retryLen()) }),
	)
}

// Request results recorded by the collector.
const (
	ResultStored    = "stored"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
)

// CollectorMetrics records collector-side activity.
type CollectorMetrics struct {
	requests *prometheus.CounterVec
	streams  *prometheus.CounterVec
	agents   prometheus.Gauge
}

// NewCollectorMetrics registers the collector instruments.
func NewCollectorMetrics(reg Registers) *CollectorMetrics {
	m := &CollectorMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "requests_total",
			Help:      "Inbound unary requests by method and result.",
		}, []string{"method", "result"}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "command_streams_total",
			Help:      "Command stream registrations by result.",
		}, []string{"result"}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "connected_agents",
			Help:      "Agents with a registered command stream.",
		}),
	}
	reg.MustRegister(m.requests, m.streams, m.agents)
	return m
}

// Request counts one inbound request.
func (m *CollectorMetrics) Request(method, result string) {
	m.requests.WithLabelValues(method, result).Inc()
}

// StreamRegistered counts a registration attempt and tracks the gauge.
func (m *CollectorMetrics) StreamRegistered(ok bool) {
	if !ok {
		m.streams.WithLabelValues("duplicate").Inc()
		return
	}
	m.streams.WithLabelValues("registered").Inc()
	m.agents.Inc()
}

// StreamClosed decrements the connected agent gauge.
func (m *CollectorMetrics) StreamClosed() { m.agents.Dec() }
