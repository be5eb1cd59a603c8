// Package collector is the receiving end of the telemetry transport.
//
// # Overview
//
// A Server owns a gRPC server for agent connections, an HTTP server for
// operators, the agent registry, the metadata dedupe cache and a prometheus
// registry:
//
//	srv, err := collector.New(cfg, collector.LogHandler{Logger: logger}, logger)
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx)
//
// # gRPC Services
//
//   - coven.telemetry.Agent/RequestAgentInfo
//   - coven.telemetry.Metadata/RequestApiMetaData, RequestSqlMetaData, RequestStringMetaData
//   - coven.telemetry.Command/CommandStream (bidirectional)
//   - grpc.health.v1.Health
//
// Every call except health checks must carry the agent header; the header
// interceptors reject the rest with InvalidArgument. Unary requests are
// handed to the Handler; a handler error becomes Result{Success: false},
// which agents retry.
//
// With auth.secret configured, the auth interceptors run after the header
// interceptors and require a bearer token whose subject is the agent id.
//
// # Transport IDs
//
// A stats.Handler numbers each accepted connection. The command stream of a
// connection is registered under that number, so two streams on one
// connection collide (AlreadyExists) while two agents never do. The entry
// is removed when the stream or the connection ends.
//
// # Metadata Dedupe
//
// API, SQL and string metadata are keyed by agent id, agent start time,
// family and id. A repeated entry inside the dedupe window is acknowledged
// without calling the Handler. store.SQLiteStore is the persistent Handler;
// LogHandler only logs.
//
// # HTTP API
//
//   - GET /health - liveness
//   - GET /health/ready - 200 once an agent holds a command stream
//   - GET /api/agents - connected agents as JSON
//   - POST /api/agents/echo?id=N&message=M - round-trip an echo command
//   - GET /metrics - prometheus exposition, when metrics are enabled
package collector
