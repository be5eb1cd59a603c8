// Package wire defines the messages exchanged between agents and the collector
// and the codec that puts them on a gRPC stream.
//
// # Messages
//
// Four request families travel from agent to collector, each answered with a
// Result:
//
//   - AgentInfo: agent identity, start time and environment properties
//   - APIMetaData: API method dictionary entry
//   - SQLMetaData: SQL text dictionary entry
//   - StringMetaData: string dictionary entry
//
// The command stream carries Command (collector to agent) and CommandReply
// (agent to collector) frames.
//
// # Codec
//
// Messages are CBOR encoded with integer keys. The codec registers itself with
// grpc under the content subtype "cbor", so clients select it per call with
//
//	grpc.CallContentSubtype(wire.CodecName)
//
// and servers pick it up from the request's content type.
//
// RawResult is the client-side response type: the codec stores the response
// bytes verbatim and decoding is deferred to RawResult.Decode, which lets the
// sender tell a malformed response apart from a transport failure.
//
// # Compression
//
// Importing this package registers "zstd" and "lz4" compressors with grpc, in
// addition to grpc's own "gzip".
package wire
