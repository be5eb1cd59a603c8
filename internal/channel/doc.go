// Package channel owns the network channel between an agent and its collector.
//
// A Manager is opened once per sender. It builds its channel through a
// Factory, derives the agent, metadata and command stubs from it, and closes
// the channel and then the factory when the sender stops.
//
// # Endpoints
//
// GRPCFactory accepts three endpoint shapes:
//
//	collector.internal:9991              resolved through dns:///
//	10.0.0.1:9991,10.0.0.2:9991          equivalent hosts behind one link
//	passthrough:///bufnet                any explicit gRPC target URI
//
// Every channel uses the singlelink balancer, so several resolved addresses
// still produce a single active connection.
package channel
