// Package otel publishes finauth metrics through OpenTelemetry.
//
// [NewOTelExporter] registers three observable counters. finauth.auth.events
// carries every engine counter under finauth.operation and finauth.outcome
// attributes. finauth.auth.duration.bucket and finauth.auth.duration.count
// carry the sign-in and refresh latency histograms, with the bucket upper
// bound in seconds under le. One callback reads
// [finauth.Engine.MetricsSnapshot] on each collection cycle. Callers own the
// MeterProvider.
package otel
