// Package telemetry holds the dispatcher's Prometheus metrics and the
// tracing seam used to annotate control-surface calls and routed
// transactions.
package telemetry

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a point-in-time read of Metrics' hot-path counters.
type Snapshot struct {
	TransactionsRouted uint64
	RepliesRouted      uint64
	OneWaySends        uint64
	DeathsDelivered    uint64
	SpawnSignals       uint64
	NoSpaceRequeues    uint64
}

// Metrics tracks dispatcher-wide counters two ways at once: plain
// atomic.Uint64 fields for cheap hot-path increments, and Prometheus
// collectors a host can register on a /metrics endpoint. A nil *Metrics is
// a valid no-op collector, so callers that run without a registered
// metrics instance don't need a branch at every call site.
type Metrics struct {
	transactionsRouted atomic.Uint64
	repliesRouted      atomic.Uint64
	oneWaySends        atomic.Uint64
	deathsDelivered    atomic.Uint64
	spawnSignals       atomic.Uint64
	noSpaceRequeues    atomic.Uint64

	ProcessesOpen      prometheus.Gauge
	ProcessesOpenTotal prometheus.Counter
	TransactionsTotal  *prometheus.CounterVec
	TransactionBytes   prometheus.Histogram
	TransactionErrors  *prometheus.CounterVec
	DeathNotifications prometheus.Counter
	ProcessQueueDepth  prometheus.Histogram
	SpawnLoopersTotal  prometheus.Counter
	NoSpaceRequeuesVec prometheus.Counter
}

// NewMetrics creates dispatcher metrics and registers them against reg.
// Panics if registration fails, which is only expected to happen at
// process startup against a misconfigured registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProcessesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "binder_processes_open",
			Help: "Number of processes currently open.",
		}),
		ProcessesOpenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "binder_processes_opened_total",
			Help: "Total number of processes opened.",
		}),
		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binder_transactions_total",
			Help: "Total transactions routed, by opcode and one-way flag.",
		}, []string{"opcode", "one_way"}),
		TransactionBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "binder_transaction_bytes",
			Help:    "Size of the data payload carried by routed transactions.",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8),
		}),
		TransactionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binder_transaction_errors_total",
			Help: "Transaction failures, by error kind.",
		}, []string{"kind"}),
		DeathNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "binder_death_notifications_total",
			Help: "Total death notifications fired to watchers.",
		}),
		ProcessQueueDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "binder_process_queue_depth",
			Help:    "Process-wide queue depth observed at read_commands time.",
			Buckets: prometheus.LinearBuckets(0, 2, 10),
		}),
		SpawnLoopersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "binder_spawn_loopers_total",
			Help: "Total BR_SPAWN_LOOPER hints emitted.",
		}),
		NoSpaceRequeuesVec: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "binder_no_space_requeues_total",
			Help: "Total messages re-queued because a read buffer was too small.",
		}),
	}

	reg.MustRegister(
		m.ProcessesOpen,
		m.ProcessesOpenTotal,
		m.TransactionsTotal,
		m.TransactionBytes,
		m.TransactionErrors,
		m.DeathNotifications,
		m.ProcessQueueDepth,
		m.SpawnLoopersTotal,
		m.NoSpaceRequeuesVec,
	)
	return m
}

// Snapshot reads every hot-path counter at once.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		TransactionsRouted: m.transactionsRouted.Load(),
		RepliesRouted:      m.repliesRouted.Load(),
		OneWaySends:        m.oneWaySends.Load(),
		DeathsDelivered:    m.deathsDelivered.Load(),
		SpawnSignals:       m.spawnSignals.Load(),
		NoSpaceRequeues:    m.noSpaceRequeues.Load(),
	}
}

// RecordOpen records a process being opened.
func (m *Metrics) RecordOpen() {
	if m == nil {
		return
	}
	m.ProcessesOpen.Inc()
	m.ProcessesOpenTotal.Inc()
}

// RecordRelease records a process being released.
func (m *Metrics) RecordRelease() {
	if m == nil {
		return
	}
	m.ProcessesOpen.Dec()
}

// RecordTransaction records a routed transaction.
func (m *Metrics) RecordTransaction(opcodeName string, oneWay bool, dataBytes int) {
	if m == nil {
		return
	}
	oneWayLabel := "false"
	if oneWay {
		oneWayLabel = "true"
	}
	m.TransactionsTotal.WithLabelValues(opcodeName, oneWayLabel).Inc()
	m.TransactionBytes.Observe(float64(dataBytes))

	switch {
	case oneWay:
		m.oneWaySends.Add(1)
	case opcodeName == "BC_REPLY":
		m.repliesRouted.Add(1)
	default:
		m.transactionsRouted.Add(1)
	}
}

// RecordError records a transaction failure by error kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.TransactionErrors.WithLabelValues(kind).Inc()
}

// RecordDeathNotification records a death notification firing.
func (m *Metrics) RecordDeathNotification() {
	if m == nil {
		return
	}
	m.DeathNotifications.Inc()
	m.deathsDelivered.Add(1)
}

// RecordQueueDepth records the process-wide queue depth observed at a
// read_commands call.
func (m *Metrics) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.ProcessQueueDepth.Observe(float64(depth))
}

// RecordSpawnLooper records a BR_SPAWN_LOOPER hint being emitted.
func (m *Metrics) RecordSpawnLooper() {
	if m == nil {
		return
	}
	m.SpawnLoopersTotal.Inc()
	m.spawnSignals.Add(1)
}

// RecordNoSpaceRequeue records a message being re-queued because a read
// buffer was too small to hold it.
func (m *Metrics) RecordNoSpaceRequeue() {
	if m == nil {
		return
	}
	m.NoSpaceRequeuesVec.Inc()
	m.noSpaceRequeues.Add(1)
}
