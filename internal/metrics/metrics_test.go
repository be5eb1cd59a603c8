package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-transport/internal/sender"
)

func TestSenderMetrics(t *testing.T) {
	reg := NewRegistry(false)
	m := NewSenderMetrics(reg.Registerer(), "default")

	m.Accepted()
	m.Accepted()
	m.Dropped(sender.DropQueueFull)
	m.CallCompleted("/coven.telemetry.Agent/RequestAgentInfo", sender.Success, 5*time.Millisecond)
	m.CallCompleted("/coven.telemetry.Agent/RequestAgentInfo", sender.TransportFailure, time.Millisecond)
	m.RetryScheduled("/coven.telemetry.Agent/RequestAgentInfo")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.accepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("queue_full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("/coven.telemetry.Agent/RequestAgentInfo", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("/coven.telemetry.Agent/RequestAgentInfo", "transport_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("/coven.telemetry.Agent/RequestAgentInfo")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestDepths(t *testing.T) {
	reg := NewRegistry(false)
	Depths(reg.Registerer(), "default", func() int { return 3 }, func() int { return 1 })

	expected := `
# HELP coven_sender_queue_length Requests waiting in the dispatch queue.
# TYPE coven_sender_queue_length gauge
coven_sender_queue_length{sender="default"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg.registry, strings.NewReader(expected), "coven_sender_queue_length"))
}

func TestCollectorMetrics(t *testing.T) {
	reg := NewRegistry(false)
	m := NewCollectorMetrics(reg.Registerer())

	m.Request("/coven.telemetry.Metadata/RequestSqlMetaData", ResultStored)
	m.Request("/coven.telemetry.Metadata/RequestSqlMetaData", ResultDuplicate)
	m.StreamRegistered(true)
	m.StreamRegistered(true)
	m.StreamRegistered(false)
	m.StreamClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/coven.telemetry.Metadata/RequestSqlMetaData", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streams.WithLabelValues("duplicate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.streams.WithLabelValues("registered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.agents))
}

func TestRegistriesAreIndependent(t *testing.T) {
	// Registering the same instruments twice on one registry panics; two
	// registries must not collide.
	NewSenderMetrics(NewRegistry(false).Registerer(), "default")
	NewSenderMetrics(NewRegistry(false).Registerer(), "default")

	reg := NewRegistry(false)
	NewSenderMetrics(reg.Registerer(), "default")
	assert.Panics(t, func() { NewSenderMetrics(reg.Registerer(), "default") })
}

func TestHandler(t *testing.T) {
	reg := NewRegistry(true)
	NewCollectorMetrics(reg.Registerer()).Request("m", ResultStored)

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `coven_collector_requests_total{method="m",result="stored"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
