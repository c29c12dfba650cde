package router

import (
	"github.com/openbinder/binder/internal/errs"
	"github.com/openbinder/binder/internal/mqueue"
	"github.com/openbinder/binder/internal/registry"
	"github.com/openbinder/binder/internal/translate"
	"github.com/openbinder/binder/internal/wire"
)

// WriteCommands consumes a packed stream of BC_* records submitted by
// thread on behalf of process, applying each in turn. A malformed opcode
// or truncated record is fatal to the whole batch and returns immediately;
// a well-formed command that fails for protocol reasons (unknown target,
// bad descriptor) is recorded on the worker's last error and the batch
// continues. It returns the number of bytes consumed, which is always the
// full length of buf unless a fatal decode error occurred first.
func (r *Router) WriteCommands(process *Process, thread *Worker, buf []byte) (int, error) {
	reader := wire.NewCommandReader(buf)

	for reader.Len() > 0 {
		op, err := reader.ReadOpcode()
		if err != nil {
			return reader.Consumed(), errs.Wrap("WriteCommands", errs.InvalidArgument, err).WithProcess(process.PID).WithThread(thread.ThreadID)
		}

		switch op {
		case wire.BCTransaction, wire.BCReply:
			td, err := reader.ReadTransactionData()
			if err != nil {
				return reader.Consumed(), errs.Wrap("WriteCommands", errs.Fault, err).WithProcess(process.PID).WithThread(thread.ThreadID)
			}
			if cerr := r.handleTransaction(process, thread, op, td); cerr != nil {
				thread.setLastError(cerr)
			}

		case wire.BCRequestDeathNotification, wire.BCClearDeathNotification:
			d, err := reader.ReadDeathPayload()
			if err != nil {
				return reader.Consumed(), errs.Wrap("WriteCommands", errs.Fault, err).WithProcess(process.PID).WithThread(thread.ThreadID)
			}
			if cerr := r.handleDeathNotification(process, thread, op, d); cerr != nil {
				thread.setLastError(cerr)
			}

		case wire.BCEnterLooper:
			if err := process.ThreadPool.EnterLooper(thread.State); err != nil {
				thread.setLastError(errs.Wrap("BC_ENTER_LOOPER", errs.FailedReply, err))
			}

		case wire.BCRegisterLooper:
			if err := process.ThreadPool.RegisterLooper(thread.State); err != nil {
				thread.setLastError(errs.Wrap("BC_REGISTER_LOOPER", errs.FailedReply, err))
			}

		case wire.BCExitLooper:
			if err := process.ThreadPool.ExitLooper(thread.State); err != nil {
				thread.setLastError(errs.Wrap("BC_EXIT_LOOPER", errs.FailedReply, err))
			}

		default:
			return reader.Consumed(), errs.New("WriteCommands", errs.InvalidArgument, "unknown opcode").WithProcess(process.PID).WithThread(thread.ThreadID)
		}
	}

	return reader.Consumed(), nil
}

// handleTransaction resolves BC_TRANSACTION/BC_REPLY's target, translates
// embedded descriptors from the sender's point of view, and delivers the
// message. A null TargetOwner (the zero OwnerKey) addresses the bound
// context manager.
func (r *Router) handleTransaction(process *Process, thread *Worker, op uint32, td *wire.TransactionData) error {
	if len(td.Data) > 4000 {
		return errs.New("WriteCommands", errs.InvalidArgument, "transaction payload exceeds maximum size")
	}

	targetOwner := translate.UnpackOwner(td.TargetOwner)
	oneWay := td.Flags&wire.FlagOneWay != 0

	var targetProcess *Process
	var targetQueue *mqueue.Queue
	var replyWorker *Worker
	var replyQueueToRelease *mqueue.Queue

	switch op {
	case wire.BCTransaction:
		if targetOwner == (registry.OwnerKey{}) {
			cm, ok := r.ContextManagerProcess()
			if !ok {
				return errs.New("BC_TRANSACTION", errs.DeadReply, "no context manager bound")
			}
			targetProcess = cm
		} else {
			tp, ok := r.Lookup(targetOwner)
			if !ok {
				return errs.New("BC_TRANSACTION", errs.DeadReply, "target process not found")
			}
			if _, ok := tp.Registry.Find(targetOwner, td.TargetKey); !ok {
				return errs.New("BC_TRANSACTION", errs.InvalidArgument, "target object not found")
			}
			targetProcess = tp
		}
		targetQueue = targetProcess.Queue
		if !oneWay {
			replyWorker = thread
		}

	case wire.BCReply:
		pt, ok := thread.PopIncoming()
		if !ok {
			return errs.New("BC_REPLY", errs.FailedReply, "no pending transaction to reply to")
		}
		targetQueue = pt.ReplyQueue
		if targetQueue == nil {
			return errs.New("BC_REPLY", errs.FailedReply, "one-way transaction cannot be replied to")
		}
		// The acquire made on this queue when the original BC_TRANSACTION
		// went out is discharged here, whether the reply itself lands,
		// fails to translate, or fails to enqueue: this call is always the
		// last thing that will ever route through that reservation.
		replyQueueToRelease = targetQueue
	}
	if replyQueueToRelease != nil {
		defer replyQueueToRelease.Release()
	}

	if err := translate.Write(process.Registry, process.Owner, td.Data, td.Offsets); err != nil {
		if op == wire.BCReply {
			// The caller waiting on this reply must be told it failed rather
			// than hang; a malformed descriptor in a reply is the replier's
			// fault, not the caller's.
			_ = targetQueue.PushTail(&mqueue.Message{Type: mqueue.FailedReply})
		}
		return errs.Wrap("WriteCommands", errs.InvalidArgument, err)
	}

	payload := &TransactionPayload{
		Code:       td.Code,
		Flags:      td.Flags,
		SenderPID:  process.PID,
		SenderEUID: process.EUID,
		Data:       td.Data,
		Offsets:    td.Offsets,
	}

	// incoming_transactions/pending_replies bookkeeping on the receiving and
	// awaiting workers happens on delivery (read_commands), not here: a
	// transaction's eventual handler is whichever worker dequeues it, which
	// is not known at write time.
	msgType := mqueue.Reply
	if op == wire.BCTransaction {
		msgType = mqueue.Transaction
		if !oneWay {
			if err := thread.Queue.Acquire(); err != nil {
				return errs.Wrap("BC_TRANSACTION", errs.DeadReply, err)
			}
			payload.ReplyQueue = thread.Queue
			payload.ReplyWorker = replyWorker
			thread.incrementPendingReplies()
		}
	}

	if err := targetQueue.PushTail(&mqueue.Message{Type: msgType, Payload: payload}); err != nil {
		if payload.ReplyQueue != nil {
			payload.ReplyQueue.Release()
		}
		return errs.Wrap("WriteCommands", errs.DeadReply, err)
	}
	r.metrics.RecordTransaction(wire.OpcodeName(op), oneWay, len(td.Data))

	return thread.Queue.PushTail(&mqueue.Message{Type: mqueue.TransactionComplete})
}

// handleDeathNotification delivers a death-notifier registration or removal
// to the target object's owning process. TargetOwner identifies the remote
// process; Handle is that object's local_key in the owner's registry.
func (r *Router) handleDeathNotification(process *Process, thread *Worker, op uint32, d *wire.DeathPayload) error {
	targetOwner := translate.UnpackOwner(d.TargetOwner)
	targetProcess, ok := r.Lookup(targetOwner)
	if !ok {
		return errs.New("WriteCommands", errs.InvalidArgument, "death notification target process not found")
	}
	ref, ok := targetProcess.Registry.Find(targetOwner, d.Handle)
	if !ok {
		return errs.New("WriteCommands", errs.InvalidArgument, "death notification on unknown object")
	}

	switch op {
	case wire.BCRequestDeathNotification:
		ref.AddNotifier(&registry.Notifier{
			Handle:      d.Handle,
			Cookie:      d.Cookie,
			NotifyOwner: process.Owner,
			NotifyQueue: process.Queue,
		})
	case wire.BCClearDeathNotification:
		if ref.RemoveNotifier(d.Cookie, process.Owner) {
			return thread.Queue.PushTail(&mqueue.Message{
				Type:    mqueue.ClearDeathNotification,
				Payload: &ClearDoneMarker{Handle: d.Handle, Cookie: d.Cookie},
			})
		}
	}
	return nil
}
