package router

import (
	"github.com/openbinder/binder/internal/mqueue"
)

// TransactionPayload is the mqueue.Message payload for Transaction and
// Reply messages.
type TransactionPayload struct {
	Code       uint32
	Flags      uint32
	SenderPID  uint32
	SenderEUID uint32
	Data       []byte
	Offsets    []uint64

	// ReplyQueue is where a BC_REPLY (or a synthetic DeadBinder/DeadReply)
	// should be delivered. nil for one-way transactions.
	ReplyQueue *mqueue.Queue
	// ReplyWorker is the originating worker. The process-wide queue's drain
	// callback uses it to decrement pending_replies when it fails the
	// transaction with a synthetic DeadReply.
	ReplyWorker *Worker
}

// DeadBinderPayload is the mqueue.Message payload for DeadBinder messages
// delivered to a notifier's own queue.
type DeadBinderPayload struct {
	Handle uint64
	Cookie uint64
}

// ClearDoneMarker is the mqueue.Message payload signalling that a
// BC_CLEAR_DEATH_NOTIFICATION succeeded and BR_CLEAR_DEATH_NOTIFICATION_DONE
// should be emitted.
type ClearDoneMarker struct {
	Handle uint64
	Cookie uint64
}
