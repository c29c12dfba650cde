package mqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushTailPopOrder(t *testing.T) {
	q := New(true, nil)
	require.NoError(t, q.PushTail(&Message{Type: Transaction, Payload: 1}))
	require.NoError(t, q.PushTail(&Message{Type: Transaction, Payload: 2}))

	m1, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m1.Payload)

	m2, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, m2.Payload)
}

func TestPushHeadPrecedesTail(t *testing.T) {
	q := New(true, nil)
	require.NoError(t, q.PushTail(&Message{Payload: "tail"}))
	require.NoError(t, q.PushHead(&Message{Payload: "head"}))

	m, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "head", m.Payload)
}

func TestNonBlockingPopEmpty(t *testing.T) {
	q := New(false, nil)
	_, err := q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestBlockingPopWaitsForPush(t *testing.T) {
	q := New(true, nil)
	result := make(chan *Message, 1)
	go func() {
		m, err := q.Pop(context.Background())
		if err == nil {
			result <- m
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.PushTail(&Message{Payload: "late"}))

	select {
	case m := <-result:
		assert.Equal(t, "late", m.Payload)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after PushTail")
	}
}

func TestPopUnblocksOnContextCancel(t *testing.T) {
	q := New(true, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after context cancellation")
	}
}

func TestPopUnblocksOnClose(t *testing.T) {
	q := New(true, nil)
	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}

func TestPushAfterCloseFails(t *testing.T) {
	q := New(true, nil)
	q.Close()
	assert.ErrorIs(t, q.PushTail(&Message{}), ErrClosed)
	assert.ErrorIs(t, q.PushHead(&Message{}), ErrClosed)
}

func TestAcquireReleaseDrainsOnZero(t *testing.T) {
	var mu sync.Mutex
	var drained []*Message
	q := New(true, func(msg *Message) {
		mu.Lock()
		drained = append(drained, msg)
		mu.Unlock()
	})

	require.NoError(t, q.Acquire())
	require.NoError(t, q.PushTail(&Message{Payload: "residual"}))

	q.Close()
	mu.Lock()
	assert.Empty(t, drained, "drain should wait for outstanding refs")
	mu.Unlock()

	q.Release() // the Acquire above
	q.Release() // the implicit New() reference

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, drained, 1)
	assert.Equal(t, "residual", drained[0].Payload)
}

func TestAcquireAfterCloseWithZeroRefcountFails(t *testing.T) {
	q := New(true, nil)
	q.Close()
	q.Release()
	assert.ErrorIs(t, q.Acquire(), ErrClosed)
}

func TestSize(t *testing.T) {
	q := New(true, nil)
	assert.Equal(t, 0, q.Size())
	require.NoError(t, q.PushTail(&Message{}))
	require.NoError(t, q.PushTail(&Message{}))
	assert.Equal(t, 2, q.Size())
}
