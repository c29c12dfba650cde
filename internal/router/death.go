package router

import "github.com/openbinder/binder/internal/mqueue"

// fanOutOwnerRelease tears down everything a process held at the moment it
// is released: every notifier registered on an object it exported fires as
// a synthetic DeadBinder, and every synchronous call a worker had accepted
// but not yet replied to is failed with DeadReply so its caller does not
// hang forever.
func fanOutOwnerRelease(r *Router, p *Process) {
	for _, obj := range p.Registry.OwnedObjects() {
		notifiers := obj.DrainNotifiers()
		for _, n := range notifiers {
			_ = n.NotifyQueue.PushTail(&mqueue.Message{
				Type:    mqueue.DeadBinder,
				Payload: &DeadBinderPayload{Handle: n.Handle, Cookie: n.Cookie},
			})
			r.metrics.RecordDeathNotification()
		}
		if len(notifiers) > 0 {
			r.log.Debug("death notifiers fired", "pid", p.PID, "object", obj.Key.LocalKey, "count", len(notifiers))
		}
	}

	for _, w := range p.Workers() {
		for {
			pt, ok := w.PopIncoming()
			if !ok {
				break
			}
			if pt.ReplyQueue == nil {
				continue
			}
			_ = pt.ReplyQueue.PushTail(&mqueue.Message{
				Type:    mqueue.DeadReply,
				Payload: &DeadBinderPayload{},
			})
			pt.ReplyQueue.Release()
		}
	}
}
