package ctrl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbinder/binder/internal/errs"
	"github.com/openbinder/binder/internal/registry"
	"github.com/openbinder/binder/internal/translate"
	"github.com/openbinder/binder/internal/wire"
)

func TestOpenAssignsDistinctProcesses(t *testing.T) {
	ctx := context.Background()
	c := NewController()
	s1 := c.Open(ctx, OpenOptions{PID: 1, MaxThreads: 4})
	s2 := c.Open(ctx, OpenOptions{PID: 2, MaxThreads: 4})
	assert.NotEqual(t, s1.process.Owner, s2.process.Owner)
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := NewController()
	s := c.Open(ctx, OpenOptions{PID: 1, MaxThreads: 4})
	c.Release(ctx, s)
	c.Release(ctx, s)
}

func TestWriteReadAfterReleaseFails(t *testing.T) {
	ctx := context.Background()
	c := NewController()
	s := c.Open(ctx, OpenOptions{PID: 1, MaxThreads: 4})
	c.Release(ctx, s)

	_, _, err := c.WriteRead(ctx, s, nil, 64)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.InvalidArgument, kind)
}

func TestSetContextManagerThenTransactionReachesIt(t *testing.T) {
	ctx := context.Background()
	c := NewController()
	cm := c.Open(ctx, OpenOptions{PID: 1, EUID: 1000, MaxThreads: 4})
	caller := c.Open(ctx, OpenOptions{PID: 2, EUID: 2000, MaxThreads: 4})

	require.NoError(t, c.SetContextManager(ctx, cm))

	w := wire.NewResponseWriter(256)
	require.True(t, w.WriteTransaction(wire.BCTransaction, &wire.TransactionData{
		Code: 42,
		Data: []byte("ping"),
	}))

	written, _, err := c.WriteRead(ctx, caller, w.Bytes(), 0)
	require.NoError(t, err)
	assert.Equal(t, len(w.Bytes()), written)

	_, readBuf, err := c.WriteRead(ctx, cm, nil, 256)
	require.NoError(t, err)
	assert.Equal(t, wire.BRTransaction, firstOpcode(readBuf))
}

func TestSetContextManagerRejectsSecondEUID(t *testing.T) {
	ctx := context.Background()
	c := NewController()
	s1 := c.Open(ctx, OpenOptions{PID: 1, EUID: 1000, MaxThreads: 4})
	s2 := c.Open(ctx, OpenOptions{PID: 2, EUID: 2000, MaxThreads: 4})

	require.NoError(t, c.SetContextManager(ctx, s1))
	err := c.SetContextManager(ctx, s2)
	require.Error(t, err)
}

func TestSetMaxThreadsUpdatesBudget(t *testing.T) {
	ctx := context.Background()
	c := NewController()
	s := c.Open(ctx, OpenOptions{PID: 1, MaxThreads: 4})
	c.SetMaxThreads(s, 1)

	w := wire.NewResponseWriter(16)
	require.True(t, w.WriteOpcode(wire.BCEnterLooper))
	_, _, err := c.WriteRead(ctx, s, w.Bytes(), 0)
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 1, stats.NumLoopers)
	assert.False(t, s.process.ThreadPool.ShouldSpawn(2), "budget of 1 is used by the entered looper")
}

func TestStatsReportsQueueAndRegistry(t *testing.T) {
	ctx := context.Background()
	c := NewController()
	s := c.Open(ctx, OpenOptions{PID: 1, MaxThreads: 4})

	s.process.Registry.InsertOrGet(s.process.Owner, 1, func() *registry.Object {
		return &registry.Object{Exported: true}
	})

	stats := s.Stats()
	assert.Equal(t, 1, stats.RegistrySize)
	assert.GreaterOrEqual(t, stats.QueueDepth, 0)
}

func TestVersionReportsProtocolAndMaxTransactionSize(t *testing.T) {
	c := NewController()
	v := c.Version()
	assert.Equal(t, uint32(protocolMajor), v.Major)
	assert.Equal(t, 4000, v.MaxTransactionSize)
}

func TestWriteReadDeliversDeathNotificationOnRelease(t *testing.T) {
	ctx := context.Background()
	c := NewController()
	owner := c.Open(ctx, OpenOptions{PID: 1, MaxThreads: 4})
	watcher := c.Open(ctx, OpenOptions{PID: 2, MaxThreads: 4})

	handle := uint64(5)
	owner.process.Registry.InsertOrGet(owner.process.Owner, handle, func() *registry.Object {
		return &registry.Object{Exported: true}
	})

	reqBuf := wire.NewResponseWriter(64)
	require.True(t, reqBuf.WriteDeathPayload(wire.BCRequestDeathNotification, &wire.DeathPayload{
		TargetOwner: translate.PackOwner(owner.process.Owner),
		Handle:      handle,
		Cookie:      9,
	}))
	_, _, err := c.WriteRead(ctx, watcher, reqBuf.Bytes(), 0)
	require.NoError(t, err)

	c.Release(ctx, owner)

	_, readBuf, err := c.WriteRead(ctx, watcher, nil, 64)
	require.NoError(t, err)
	assert.Equal(t, wire.BRDeadBinder, firstOpcode(readBuf))
}

func firstOpcode(buf []byte) uint32 {
	r := wire.NewCommandReader(buf)
	op, err := r.ReadOpcode()
	if err != nil {
		return ^uint32(0)
	}
	return op
}
