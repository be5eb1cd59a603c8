// Package telemetry holds the in-process telemetry objects agents produce and
// the Converter that turns them into wire messages for the sender.
package telemetry
