package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbinder/binder/internal/mqueue"
	"github.com/openbinder/binder/internal/registry"
)

func TestWorkerIncomingLIFO(t *testing.T) {
	w := newWorker(1, nil)
	first := &PendingTransaction{DataSize: 1}
	second := &PendingTransaction{DataSize: 2}

	w.PushIncoming(first)
	w.PushIncoming(second)

	got, ok := w.PopIncoming()
	require.True(t, ok)
	assert.Same(t, second, got)

	got, ok = w.PopIncoming()
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = w.PopIncoming()
	assert.False(t, ok)
}

func TestWorkerLastErrorClearsOnRead(t *testing.T) {
	w := newWorker(1, nil)
	assert.NoError(t, w.LastError())

	w.setLastError(assert.AnError)
	assert.Equal(t, assert.AnError, w.LastError())
	assert.NoError(t, w.LastError())
}

func TestWorkerPendingReplies(t *testing.T) {
	w := newWorker(1, nil)
	assert.EqualValues(t, 0, w.PendingReplies())
	assert.EqualValues(t, 1, w.incrementPendingReplies())
	assert.EqualValues(t, 0, w.decrementPendingReplies())
}

func TestProcessWorkerForIsLazyAndStable(t *testing.T) {
	p := NewProcess(registry.OwnerKey{ID: 1, Generation: 1}, 100, 1000, false, 4, nil)
	w1 := p.WorkerFor(42)
	w2 := p.WorkerFor(42)
	assert.Same(t, w1, w2)
	assert.Len(t, p.Workers(), 1)
}

func TestProcessRemoveWorkerClosesQueue(t *testing.T) {
	p := NewProcess(registry.OwnerKey{ID: 1, Generation: 1}, 100, 1000, false, 4, nil)
	w := p.WorkerFor(7)
	p.RemoveWorker(7)
	assert.Len(t, p.Workers(), 0)

	err := w.Queue.PushTail(&mqueue.Message{})
	assert.ErrorIs(t, err, mqueue.ErrClosed)
}
