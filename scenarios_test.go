package binder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbinder/binder/internal/wire"
)

// buildExportBuffer packs a BC_TRANSACTION carrying a single embedded
// Binder descriptor at offset 0, the shape a sender uses to hand an object
// it owns to a target process.
func buildExportBuffer(t *testing.T, targetOwner, targetKey uint64, cookie uint64) []byte {
	t.Helper()
	data := make([]byte, wire.FlatObjectSize)
	copy(data, wire.MarshalFlatObject(&wire.FlatObject{Tag: wire.TagBinder, Binder: 1, Cookie: cookie}))

	w := wire.NewResponseWriter(256)
	require.True(t, w.WriteTransaction(wire.BCTransaction, &wire.TransactionData{
		TargetOwner: targetOwner,
		TargetKey:   targetKey,
		Data:        data,
		Offsets:     []uint64{0},
	}))
	return w.Bytes()
}

func readTransaction(t *testing.T, buf []byte) (uint32, *wire.TransactionData) {
	t.Helper()
	r := wire.NewCommandReader(buf)
	op, err := r.ReadOpcode()
	require.NoError(t, err)
	// A sender's own BR_TRANSACTION_COMPLETE precedes the reply in its read.
	for op == wire.BRTransactionComplete {
		op, err = r.ReadOpcode()
		require.NoError(t, err)
	}
	td, err := r.ReadTransactionData()
	require.NoError(t, err)
	return op, td
}

// TestHandleRoundTrip exercises scenario 2: A exports object X to B inside
// a transaction; B sends it back to A inside a reply; A's read-side must
// restore the original tag and cookie.
func TestHandleRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil)

	a := d.Open(ctx, OpenOptions{PID: 1, MaxThreads: 4})
	b := d.Open(ctx, OpenOptions{PID: 2, MaxThreads: 4})
	require.NoError(t, a.SetContextManager(ctx))

	const cookie = uint64(0xC0FFEE)
	_, _, err := b.WriteRead(ctx, buildExportBuffer(t, 0, 0, cookie), 0)
	require.NoError(t, err)

	_, aRead, err := a.WriteRead(ctx, nil, 256)
	require.NoError(t, err)
	_, td := readTransaction(t, aRead)
	require.Len(t, td.Offsets, 1)
	obj, err := wire.UnmarshalFlatObject(td.Data[td.Offsets[0] : td.Offsets[0]+wire.FlatObjectSize])
	require.NoError(t, err)
	assert.Equal(t, wire.TagHandle, obj.Tag)

	w := wire.NewResponseWriter(256)
	require.True(t, w.WriteTransaction(wire.BCReply, &wire.TransactionData{
		Data:    td.Data,
		Offsets: td.Offsets,
	}))
	_, _, err = a.WriteRead(ctx, w.Bytes(), 0)
	require.NoError(t, err)

	_, bRead, err := b.WriteRead(ctx, nil, 256)
	require.NoError(t, err)
	_, bTD := readTransaction(t, bRead)
	bObj, err := wire.UnmarshalFlatObject(bTD.Data[bTD.Offsets[0] : bTD.Offsets[0]+wire.FlatObjectSize])
	require.NoError(t, err)
	assert.Equal(t, wire.TagBinder, bObj.Tag)
	assert.Equal(t, cookie, bObj.Cookie)
}

// TestDeathFanOut exercises scenario 3: A requests a death notifier on B's
// object; B is released; A's next read yields exactly one BR_DEAD_BINDER.
func TestDeathFanOut(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil)

	a := d.Open(ctx, OpenOptions{PID: 1, MaxThreads: 4})
	b := d.Open(ctx, OpenOptions{PID: 2, MaxThreads: 4})

	require.NoError(t, a.SetContextManager(ctx))
	_, _, err := b.WriteRead(ctx, buildExportBuffer(t, 0, 0, 1), 0)
	require.NoError(t, err)

	_, aRead, err := a.WriteRead(ctx, nil, 256)
	require.NoError(t, err)
	_, td := readTransaction(t, aRead)
	obj, err := wire.UnmarshalFlatObject(td.Data[td.Offsets[0] : td.Offsets[0]+wire.FlatObjectSize])
	require.NoError(t, err)
	require.Equal(t, wire.TagHandle, obj.Tag)

	w := wire.NewResponseWriter(64)
	require.True(t, w.WriteDeathPayload(wire.BCRequestDeathNotification, &wire.DeathPayload{
		TargetOwner: obj.Cookie,
		Handle:      obj.Binder,
		Cookie:      9,
	}))
	_, _, err = a.WriteRead(ctx, w.Bytes(), 0)
	require.NoError(t, err)

	b.Release(ctx)

	_, readBuf, err := a.WriteRead(ctx, nil, 64)
	require.NoError(t, err)
	r := wire.NewCommandReader(readBuf)
	op, err := r.ReadOpcode()
	require.NoError(t, err)
	assert.Equal(t, wire.BRDeadBinder, op)
}

// TestSpawnSignalling exercises scenario 4: with room left in the
// max_threads budget and more than one queued message, a read emits
// BR_SPAWN_LOOPER before the first message.
func TestSpawnSignalling(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil)

	a := d.Open(ctx, OpenOptions{PID: 1, EUID: 0, MaxThreads: 4})
	b := d.Open(ctx, OpenOptions{PID: 2, MaxThreads: 4})
	require.NoError(t, a.SetContextManager(ctx))

	for i := 0; i < 2; i++ {
		_, _, err := b.WriteRead(ctx, newTestTransaction(t, uint32(i), []byte("x")), 0)
		require.NoError(t, err)
	}

	_, readBuf, err := a.WriteRead(ctx, nil, 512)
	require.NoError(t, err)
	r := wire.NewCommandReader(readBuf)
	op, err := r.ReadOpcode()
	require.NoError(t, err)
	assert.Equal(t, wire.BRSpawnLooper, op)
}

// TestPartialRead exercises scenario 5: a buffer too small for the pending
// message's wire size yields no bytes and re-queues the message, so a
// larger subsequent read delivers the identical payload.
func TestPartialRead(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil)

	a := d.Open(ctx, OpenOptions{PID: 1, MaxThreads: 4})
	b := d.Open(ctx, OpenOptions{PID: 2, MaxThreads: 4})
	require.NoError(t, a.SetContextManager(ctx))

	_, _, err := b.WriteRead(ctx, newTestTransaction(t, 7, []byte("hello world")), 0)
	require.NoError(t, err)

	_, tooSmall, err := a.WriteRead(ctx, nil, 4)
	require.NoError(t, err)
	assert.Empty(t, tooSmall)

	_, full, err := a.WriteRead(ctx, nil, 256)
	require.NoError(t, err)
	_, td := readTransaction(t, full)
	assert.Equal(t, []byte("hello world"), td.Data)
}

// TestOneWayFireAndForget exercises scenario 6: a one-way send leaves the
// sender's pending_replies unchanged and delivers no reply_queue to the
// receiver.
func TestOneWayFireAndForget(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil)

	a := d.Open(ctx, OpenOptions{PID: 1, MaxThreads: 4})
	b := d.Open(ctx, OpenOptions{PID: 2, MaxThreads: 4})
	require.NoError(t, a.SetContextManager(ctx))

	w := wire.NewResponseWriter(256)
	require.True(t, w.WriteTransaction(wire.BCTransaction, &wire.TransactionData{
		Code:  3,
		Flags: wire.FlagOneWay,
		Data:  []byte("fire"),
	}))
	_, _, err := b.WriteRead(ctx, w.Bytes(), 0)
	require.NoError(t, err)

	_, aRead, err := a.WriteRead(ctx, nil, 256)
	require.NoError(t, err)
	op, _ := readTransaction(t, aRead)
	assert.Equal(t, wire.BRTransaction, op)

	stats := b.Stats()
	assert.Equal(t, 0, stats.QueueDepth)
}
