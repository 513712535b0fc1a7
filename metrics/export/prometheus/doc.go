// Package prometheus exposes client metrics through
// github.com/prometheus/client_golang.
//
// [PrometheusExporter] is a prometheus.Collector: register it with any
// registry, or mount [PrometheusExporter.Handler] which serves a private
// registry. Counters are named authclient_*_total; the single histogram is
// authclient_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate client state.
package prometheus
