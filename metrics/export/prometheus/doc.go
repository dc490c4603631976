// Package prometheus exposes finauth metrics through prometheus/client_golang.
//
// [PrometheusExporter] is a prometheus.Collector that turns each engine
// snapshot into const counters (finauth_*_total) and const histograms
// (finauth_signin_latency_seconds, finauth_refresh_latency_seconds).
// Handler mounts it on a private registry; nothing is registered globally.
package prometheus
