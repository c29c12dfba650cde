// Package mqueue implements the typed FIFO message queue that backs both
// process-wide and per-worker delivery: blocking pop, head/tail push,
// external refcounting, and a drain callback invoked on every message left
// behind when the queue closes.
package mqueue

import (
	"context"
	"sync"

	"github.com/openbinder/binder/internal/logging"
)

// MessageType distinguishes the payload carried by a Message.
type MessageType int

const (
	Transaction MessageType = iota
	Reply
	ClearDeathNotification
	DeadBinder
	TransactionComplete
	FailedReply
	DeadReply
)

// Message is the unit of delivery between queues. Payload is type-specific;
// router and translate own the concrete shapes it carries.
type Message struct {
	Type    MessageType
	Payload any
}

// DrainFunc is invoked once per residual message when a queue is finally
// closed and its refcount has already reached zero. It runs with no queue
// lock held, so it may itself push onto other queues.
type DrainFunc func(msg *Message)

// Queue is a FIFO of *Message with blocking pop, external refcounting and
// close-time draining. The zero value is not usable; use New.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []*Message
	closed   bool
	refcount int
	blocking bool
	drainCB  DrainFunc
	log      *logging.Logger
}

// New creates an empty queue. blocking controls Pop's behaviour when the
// queue is empty and not closed: blocking queues wait, non-blocking queues
// return ErrEmpty immediately.
func New(blocking bool, drainCB DrainFunc) *Queue {
	q := &Queue{
		blocking: blocking,
		refcount: 1,
		drainCB:  drainCB,
		log:      logging.Default().With("component", "mqueue"),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// PushTail appends msg to the back of the queue and wakes one waiter.
func (q *Queue) PushTail(msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, msg)
	q.cond.Signal()
	return nil
}

// PushHead re-queues msg at the front, ahead of anything already waiting.
// Used to restore partially-delivered messages and to preserve priority
// over concurrently arriving tail pushes.
func (q *Queue) PushHead(msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append([]*Message{msg}, q.items...)
	q.cond.Signal()
	return nil
}

// Pop removes and returns the message at the front of the queue. On a
// blocking queue, Pop waits for a message or for Close; ctx cancellation
// also unblocks the wait. On a non-blocking queue, Pop returns ErrEmpty
// immediately rather than waiting.
func (q *Queue) Pop(ctx context.Context) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		if !q.blocking {
			return nil, ErrEmpty
		}
		if ctx != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ctx == nil {
			q.cond.Wait()
			continue
		}
		if waitWithContext(ctx, q.cond) {
			return nil, ctx.Err()
		}
	}
	if len(q.items) == 0 {
		return nil, ErrClosed
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, nil
}

// Size reports the number of messages currently queued.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Acquire increments the external refcount. It fails once the queue is
// closed: a closed queue accepts no new holders, only releases from
// existing ones.
func (q *Queue) Acquire() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.refcount++
	return nil
}

// Release decrements the external refcount. Once the queue has been closed
// and the refcount reaches zero, the drain callback runs once per residual
// message and the queue's memory is eligible for collection.
func (q *Queue) Release() {
	q.mu.Lock()
	q.refcount--
	closed := q.closed
	rc := q.refcount
	var drained []*Message
	if closed && rc == 0 {
		drained = q.items
		q.items = nil
	}
	q.mu.Unlock()

	if closed && rc == 0 && q.drainCB != nil {
		for _, msg := range drained {
			q.drainCB(msg)
		}
	}
}

// Close marks the queue closed, waking every blocked Pop with ErrClosed.
// If the refcount is already zero, Close also drains residual messages
// immediately; otherwise draining is deferred to the final Release.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	rc := q.refcount
	var drained []*Message
	if rc == 0 {
		drained = q.items
		q.items = nil
	}
	q.mu.Unlock()
	q.cond.Broadcast()

	if rc == 0 && q.drainCB != nil {
		for _, msg := range drained {
			q.drainCB(msg)
		}
	}
}

// waitWithContext waits on cond, returning true if ctx was cancelled first.
// It must be called with cond's lock held; it releases the lock while
// waiting, as sync.Cond.Wait requires.
func waitWithContext(ctx context.Context, cond *sync.Cond) bool {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(done)
		cond.Broadcast()
	})
	defer stop()

	cond.Wait()
	select {
	case <-done:
		return true
	default:
		return false
	}
}
