package router

import (
	"context"

	"github.com/openbinder/binder/internal/mqueue"
	"github.com/openbinder/binder/internal/translate"
	"github.com/openbinder/binder/internal/wire"
)

// ReadCommands fills a caller-supplied capacity with a packed sequence of
// BR_* records for thread, blocking on its first pop (honouring ctx
// cancellation) and draining opportunistically after that until either the
// buffer runs out or both of the thread's sources are empty.
//
// Source selection prefers the worker's private queue: it holds this
// thread's own replies and directed work, and once a synchronous call is
// outstanding (pending_replies > 0) the thread must wait there rather than
// picking up unrelated work from the process-wide queue.
func (r *Router) ReadCommands(ctx context.Context, process *Process, thread *Worker, capacity int) ([]byte, error) {
	w := wire.NewResponseWriter(capacity)

	if process.ThreadPool.ShouldSpawn(process.Queue.Size()) {
		w.WriteOpcode(wire.BRSpawnLooper)
		r.metrics.RecordSpawnLooper()
	}

	for i := 0; ; i++ {
		source := thread.Queue
		if thread.Queue.Size() == 0 && thread.PendingReplies() == 0 {
			source = process.Queue
		}
		if i > 0 && source.Size() == 0 {
			break
		}

		var (
			msg *mqueue.Message
			err error
		)
		if i == 0 {
			msg, err = source.Pop(ctx)
		} else {
			msg, err = source.Pop(nil)
		}
		if err != nil {
			if i == 0 && err != mqueue.ErrEmpty {
				return w.Bytes(), err
			}
			break
		}

		if !r.encodeMessage(process, thread, w, msg) {
			_ = source.PushHead(msg)
			r.metrics.RecordNoSpaceRequeue()
			break
		}
	}

	return w.Bytes(), nil
}

// encodeTransactionSize reports the wire size a Transaction/Reply record
// would occupy, computed without mutating the payload, so a buffer-full
// check can run before translate.Read irreversibly rewrites descriptors.
func encodeTransactionSize(payload *TransactionPayload) int {
	return 4 + 40 + len(payload.Data) + len(payload.Offsets)*wire.OffsetSize
}

// encodeMessage appends one message's wire form to w, returning false if it
// would not fit. On false the caller must re-queue msg unchanged at the head
// of its source.
func (r *Router) encodeMessage(process *Process, thread *Worker, w *wire.ResponseWriter, msg *mqueue.Message) bool {
	switch msg.Type {
	case mqueue.Transaction, mqueue.Reply:
		payload := msg.Payload.(*TransactionPayload)
		if w.Remaining() < encodeTransactionSize(payload) {
			return false
		}
		if err := translate.Read(process.Registry, process.Owner, payload.Data, payload.Offsets); err != nil {
			thread.setLastError(err)
			return true
		}
		op := wire.BRReply
		if msg.Type == mqueue.Transaction {
			op = wire.BRTransaction
			if payload.ReplyQueue != nil {
				thread.PushIncoming(&PendingTransaction{ReplyQueue: payload.ReplyQueue, DataSize: uint32(len(payload.Data))})
			}
		} else {
			thread.decrementPendingReplies()
		}
		return w.WriteTransaction(op, &wire.TransactionData{
			Code:       payload.Code,
			Flags:      payload.Flags,
			SenderPID:  payload.SenderPID,
			SenderEUID: payload.SenderEUID,
			Data:       payload.Data,
			Offsets:    payload.Offsets,
		})

	case mqueue.DeadBinder:
		payload := msg.Payload.(*DeadBinderPayload)
		return w.WriteDeathPayload(wire.BRDeadBinder, &wire.DeathPayload{Handle: payload.Handle, Cookie: payload.Cookie})

	case mqueue.ClearDeathNotification:
		payload := msg.Payload.(*ClearDoneMarker)
		return w.WriteDeathPayload(wire.BRClearDeathNotificationDone, &wire.DeathPayload{Handle: payload.Handle, Cookie: payload.Cookie})

	case mqueue.TransactionComplete:
		return w.WriteOpcode(wire.BRTransactionComplete)

	case mqueue.FailedReply:
		thread.decrementPendingReplies()
		return w.WriteOpcode(wire.BRFailedReply)

	case mqueue.DeadReply:
		return w.WriteOpcode(wire.BRDeadReply)

	default:
		return w.WriteOpcode(wire.BRTransactionComplete)
	}
}
