package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersEverything(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestRecordOpenAndRelease(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordOpen()
	m.RecordOpen()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ProcessesOpen))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ProcessesOpenTotal))

	m.RecordRelease()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProcessesOpen))
}

func TestRecordTransactionAndError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordTransaction("BC_TRANSACTION", false, 128)
	m.RecordError("dead_reply")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("BC_TRANSACTION", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TransactionErrors.WithLabelValues("dead_reply")))
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	m.RecordOpen()
	m.RecordRelease()
	m.RecordTransaction("BC_TRANSACTION", true, 0)
	m.RecordError("fault")
	m.RecordDeathNotification()
	m.RecordQueueDepth(3)
	m.RecordSpawnLooper()
	m.RecordNoSpaceRequeue()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestSnapshotTracksHotPathCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordTransaction("BC_TRANSACTION", false, 8)
	m.RecordTransaction("BC_TRANSACTION", true, 4)
	m.RecordTransaction("BC_REPLY", false, 8)
	m.RecordDeathNotification()
	m.RecordSpawnLooper()
	m.RecordNoSpaceRequeue()

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.TransactionsRouted)
	assert.Equal(t, uint64(1), snap.RepliesRouted)
	assert.Equal(t, uint64(1), snap.OneWaySends)
	assert.Equal(t, uint64(1), snap.DeathsDelivered)
	assert.Equal(t, uint64(1), snap.SpawnSignals)
	assert.Equal(t, uint64(1), snap.NoSpaceRequeues)
}
