package binder

import "github.com/openbinder/binder/internal/telemetry"

// Snapshot is a point-in-time read of a Dispatcher's hot-path counters.
type Snapshot = telemetry.Snapshot

// Metrics returns the dispatcher's counters. The returned *Metrics is never
// nil; if no MetricsRegisterer was supplied to NewDispatcher it wraps no
// collector and Snapshot reports all zeros, so callers never need to
// branch on whether metrics were enabled.
func (d *Dispatcher) Metrics() *Metrics {
	return &Metrics{inner: d.ctrl.MetricsCollector()}
}

// Metrics wraps the dispatcher's counters for public consumption without
// exposing internal/telemetry directly.
type Metrics struct {
	inner *telemetry.Metrics
}

// Snapshot reads every hot-path counter at once: transactions routed,
// replies routed, one-way sends, deaths delivered, spawn signals, and
// messages re-queued for insufficient read buffer space.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return m.inner.Snapshot()
}
