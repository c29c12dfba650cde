package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbinder/binder/internal/mqueue"
	"github.com/openbinder/binder/internal/registry"
)

func TestFanOutOwnerReleaseDeliversDeadBinder(t *testing.T) {
	r := New()
	owner := r.OpenProcess(1, 0, false, 4)
	watcher := r.OpenProcess(2, 0, false, 4)

	obj, _ := owner.Registry.InsertOrGet(owner.Owner, 1, func() *registry.Object {
		return &registry.Object{Exported: true}
	})
	obj.AddNotifier(&registry.Notifier{Handle: 1, Cookie: 7, NotifyOwner: watcher.Owner, NotifyQueue: watcher.Queue})

	fanOutOwnerRelease(r, owner)

	msg, err := watcher.Queue.Pop(nil)
	require.NoError(t, err)
	assert.Equal(t, mqueue.DeadBinder, msg.Type)
	payload := msg.Payload.(*DeadBinderPayload)
	assert.Equal(t, uint64(1), payload.Handle)
	assert.Equal(t, uint64(7), payload.Cookie)
}

func TestFanOutOwnerReleaseFailsPendingIncomingTransactions(t *testing.T) {
	r := New()
	owner := r.OpenProcess(1, 0, false, 4)
	caller := r.OpenProcess(2, 0, false, 4)
	thread := owner.WorkerFor(1)

	require.NoError(t, caller.Queue.Acquire())
	thread.PushIncoming(&PendingTransaction{ReplyQueue: caller.Queue, DataSize: 10})

	fanOutOwnerRelease(r, owner)

	msg, err := caller.Queue.Pop(nil)
	require.NoError(t, err)
	assert.Equal(t, mqueue.DeadReply, msg.Type)
	assert.Empty(t, thread.incomingTransactions)
}
