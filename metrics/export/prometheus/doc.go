// Package prometheus renders goSession metrics in the Prometheus text format.
//
// [NewPrometheusExporter] wraps a [goSession.Manager] and exposes an
// [http.Handler]. Counters are named gosession_*_total. Switch, refresh and
// rehydrate counters are families with a result or outcome label. The branch
// confirm and token refresh latencies are histograms in seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate session state.
package prometheus
