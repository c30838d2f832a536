// Package otel binds goSession metrics to OpenTelemetry instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter or
// counter family, with family members told apart by an attribute such as
// result="failure". Each latency histogram becomes a _bucket gauge keyed by
// an "le" attribute plus a _count gauge. One callback reads
// [goSession.Manager.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate session state.
package otel
