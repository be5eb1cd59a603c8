// Package metrics exposes prometheus instruments for both ends of the
// transport. SenderMetrics plugs into sender.WithMetrics; CollectorMetrics is
// driven by the collector server, which also serves Registry.Handler on
// /metrics.
package metrics
