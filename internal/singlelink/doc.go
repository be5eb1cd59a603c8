// Package singlelink implements the collector connection-selection policy.
//
// A collector endpoint may resolve to several equivalent hosts. The policy
// keeps exactly one link open and never flaps between hosts on transient
// state changes:
//
//   - first resolution creates the link and asks it to connect
//   - later resolutions update the link's addresses in place
//   - a resolver error shuts the link down and fails calls
//   - a link in transient failure fails calls fast until it recovers or a
//     new resolution arrives
//
// Policy holds the state machine {Idle, Connecting, Ready, Failed} and talks
// to the outside world through the Link and Helper interfaces. The gRPC
// adapter registered under Name maps those onto SubConns and pickers; channels
// opt in with ServiceConfig.
package singlelink
