// Package otel publishes Engine counters as OpenTelemetry observable
// instruments.
//
// One callback reads Engine.MetricsSnapshot per collection. Each latency
// bucket becomes a cumulative gauge named <histogram>_bucket_le_<bound>.
// The caller owns the MeterProvider.
package otel
