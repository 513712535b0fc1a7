// Package otel reports client metrics through OpenTelemetry observable
// instruments.
//
// Related client counters are grouped into a few instruments told apart by
// one attribute, for example authclient_refreshes_total{result="coalesced"}
// or authclient_request_failures_total{kind="network"}. The latency histogram
// is a bucket gauge keyed by "le" plus a count gauge. A single callback reads
// [authclient.Client.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate client state.
package otel
