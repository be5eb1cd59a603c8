// Package rpc declares the gRPC surface between agents and the collector.
//
// There is no protoc step: service descriptors, client stubs and server
// interfaces are maintained by hand in the layout protoc-gen-go-grpc produces,
// and every call is pinned to the wire package's CBOR codec.
//
// # Services
//
//	coven.telemetry.Agent     RequestAgentInfo(AgentInfo) Result
//	coven.telemetry.Metadata  RequestApiMetaData(APIMetaData) Result
//	                          RequestSqlMetaData(SQLMetaData) Result
//	                          RequestStringMetaData(StringMetaData) Result
//	coven.telemetry.Command   CommandStream(stream CommandReply) stream Command
//
// Client stubs return *wire.RawResult so callers decide when (and whether) to
// decode. Server implementations return *wire.Result.
package rpc
