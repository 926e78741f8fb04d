// Package metrics defines the Prometheus instruments of the voice server.
// Metrics are registered on a caller-supplied registerer; the Record
// helpers are no-ops on a nil *Metrics so components can run unmetered.
package metrics
