// ABOUTME: Unit tests for the telemetry services and the transport id tagger.
// ABOUTME: Calls service methods directly with a header-bearing context.

package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/stats"

	"github.com/2389/coven-transport/internal/dedupe"
	"github.com/2389/coven-transport/internal/header"
	"github.com/2389/coven-transport/internal/logging"
	"github.com/2389/coven-transport/internal/metrics"
	"github.com/2389/coven-transport/internal/wire"
)

// recordingHandler stores what it receives. failNext makes the next n calls
// fail.
type recordingHandler struct {
	mu       sync.Mutex
	infos    []*wire.AgentInfo
	sql      []*wire.SQLMetaData
	api      []*wire.APIMetaData
	strings  []*wire.StringMetaData
	headers  []header.Header
	failNext int
}

func (r *recordingHandler) fail() error {
	if r.failNext > 0 {
		r.failNext--
		return errors.New("storage unavailable")
	}
	return nil
}

func (r *recordingHandler) HandleAgentInfo(_ context.Context, h header.Header, info *wire.AgentInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.infos = append(r.infos, info)
	r.headers = append(r.headers, h)
	return nil
}

func (r *recordingHandler) HandleAPIMetaData(_ context.Context, h header.Header, md *wire.APIMetaData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.api = append(r.api, md)
	r.headers = append(r.headers, h)
	return nil
}

func (r *recordingHandler) HandleSQLMetaData(_ context.Context, h header.Header, md *wire.SQLMetaData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.sql = append(r.sql, md)
	r.headers = append(r.headers, h)
	return nil
}

func (r *recordingHandler) HandleStringMetaData(_ context.Context, h header.Header, md *wire.StringMetaData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.strings = append(r.strings, md)
	r.headers = append(r.headers, h)
	return nil
}

func (r *recordingHandler) counts() (infos, api, sql, str int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.infos), len(r.api), len(r.sql), len(r.strings)
}

func newTelemetryService(t *testing.T, h Handler) *telemetryService {
	t.Helper()
	cache := dedupe.New(time.Minute, 100, 0)
	t.Cleanup(cache.Close)
	return &telemetryService{
		handler: h,
		dedupe:  cache,
		metrics: metrics.NewCollectorMetrics(metrics.NewRegistry(false).Registerer()),
		logger:  logging.Discard(),
	}
}

func agentCtx(agentID string, start int64) context.Context {
	return header.WithHeader(context.Background(), header.Header{AgentID: agentID, ApplicationName: "app", StartTime: start})
}

func TestRequestAgentInfo(t *testing.T) {
	rec := &recordingHandler{}
	svc := newTelemetryService(t, rec)

	res, err := svc.RequestAgentInfo(agentCtx("a1", 100), &wire.AgentInfo{Hostname: "web-01"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = svc.RequestAgentInfo(agentCtx("a1", 100), &wire.AgentInfo{Hostname: "web-01"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	infos, _, _, _ := rec.counts()
	assert.Equal(t, 2, infos, "agent info is not deduplicated")
	assert.Equal(t, "a1", rec.headers[0].AgentID)
}

func TestMetadataDedupe(t *testing.T) {
	rec := &recordingHandler{}
	svc := newTelemetryService(t, rec)
	ctx := agentCtx("a1", 100)

	for range 3 {
		res, err := svc.RequestSqlMetaData(ctx, &wire.SQLMetaData{SQLID: 1, SQL: "select 1"})
		require.NoError(t, err)
		assert.True(t, res.Success)
	}
	_, _, sql, _ := rec.counts()
	assert.Equal(t, 1, sql)

	// Same id in another family or from a restarted agent is new.
	_, err := svc.RequestStringMetaData(ctx, &wire.StringMetaData{StringID: 1, StringValue: "x"})
	require.NoError(t, err)
	_, err = svc.RequestApiMetaData(ctx, &wire.APIMetaData{APIID: 1, APIInfo: "main()"})
	require.NoError(t, err)
	_, err = svc.RequestSqlMetaData(agentCtx("a1", 200), &wire.SQLMetaData{SQLID: 1, SQL: "select 1"})
	require.NoError(t, err)

	_, api, sql, str := rec.counts()
	assert.Equal(t, 1, api)
	assert.Equal(t, 2, sql)
	assert.Equal(t, 1, str)
}

func TestMetadataHandlerFailureNotRemembered(t *testing.T) {
	rec := &recordingHandler{failNext: 1}
	svc := newTelemetryService(t, rec)
	ctx := agentCtx("a1", 100)

	res, err := svc.RequestApiMetaData(ctx, &wire.APIMetaData{APIID: 9})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "storage unavailable", res.Message)

	res, err = svc.RequestApiMetaData(ctx, &wire.APIMetaData{APIID: 9})
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, api, _, _ := rec.counts()
	assert.Equal(t, 1, api)
}

func TestAgentInfoRejected(t *testing.T) {
	svc := newTelemetryService(t, &recordingHandler{failNext: 1})

	res, err := svc.RequestAgentInfo(agentCtx("a1", 1), &wire.AgentInfo{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestConnTagger(t *testing.T) {
	var ended []uint64
	tagger := &connTagger{onEnd: func(id uint64) { ended = append(ended, id) }}

	ctx1 := tagger.TagConn(context.Background(), &stats.ConnTagInfo{})
	ctx2 := tagger.TagConn(context.Background(), &stats.ConnTagInfo{})

	id1, ok := TransportIDFromContext(ctx1)
	require.True(t, ok)
	id2, ok := TransportIDFromContext(ctx2)
	require.True(t, ok)
	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)

	tagger.HandleConn(ctx1, &stats.ConnBegin{})
	assert.Empty(t, ended)
	tagger.HandleConn(ctx2, &stats.ConnEnd{})
	assert.Equal(t, []uint64{2}, ended)

	_, ok = TransportIDFromContext(context.Background())
	assert.False(t, ok)
}
