package mqueue

import "errors"

var (
	// ErrEmpty is returned by Pop on a non-blocking queue with nothing queued.
	ErrEmpty = errors.New("mqueue: empty")

	// ErrClosed is returned by PushTail, PushHead, Acquire and a draining Pop
	// once the queue has been closed.
	ErrClosed = errors.New("mqueue: closed")
)
