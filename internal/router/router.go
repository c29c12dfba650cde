package router

import (
	"sync"
	"sync/atomic"

	"github.com/openbinder/binder/internal/errs"
	"github.com/openbinder/binder/internal/logging"
	"github.com/openbinder/binder/internal/mqueue"
	"github.com/openbinder/binder/internal/registry"
	"github.com/openbinder/binder/internal/telemetry"
)

// Router owns every open process and the single well-known context manager
// binding shared between them.
type Router struct {
	nextID uint64

	mu        sync.RWMutex
	processes map[registry.OwnerKey]*Process

	ctxMu      sync.Mutex
	ctxBound   bool
	ctxOwner   registry.OwnerKey
	ctxEUID    uint32

	metrics *telemetry.Metrics
	log     *logging.Logger
}

// New creates an empty router.
func New() *Router {
	return &Router{
		processes: make(map[registry.OwnerKey]*Process),
		log:       logging.Default().With("component", "router"),
	}
}

// SetMetrics attaches a metrics collector. A nil *telemetry.Metrics (the
// zero value of this field) makes every recording call a no-op.
func (r *Router) SetMetrics(m *telemetry.Metrics) {
	r.metrics = m
}

// OpenProcess allocates a new owner identity and process record.
func (r *Router) OpenProcess(pid, euid uint32, nonBlocking bool, maxThreads int) *Process {
	id := atomic.AddUint64(&r.nextID, 1)
	owner := registry.OwnerKey{ID: id, Generation: 1}

	p := NewProcess(owner, pid, euid, nonBlocking, maxThreads, r.makeDrainCB(owner))

	r.mu.Lock()
	r.processes[owner] = p
	r.mu.Unlock()

	r.log.Debug("process opened", "pid", pid, "owner", owner.ID)
	return p
}

// Lookup resolves an owner identity to its live process record.
func (r *Router) Lookup(owner registry.OwnerKey) (*Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processes[owner]
	return p, ok
}

// ReleaseProcess tears a process down: every worker queue is closed, every
// object it owns fans its notifiers out as DeadBinder, and the process-wide
// queue is closed last so concurrent senders observe DeadReply rather than
// a silent drop.
func (r *Router) ReleaseProcess(owner registry.OwnerKey) {
	r.mu.Lock()
	p, ok := r.processes[owner]
	if ok {
		delete(r.processes, owner)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.unbindContextManagerIfOwner(owner)

	for _, w := range p.Workers() {
		w.Queue.Close()
	}

	fanOutOwnerRelease(r, p)

	p.Queue.Close()
	p.Queue.Release()

	r.log.Debug("process released", "pid", p.PID, "owner", owner.ID)
}

// makeDrainCB builds the process-wide queue's drain callback: every
// residual synchronous Transaction is answered with a synthetic DeadReply
// on its original reply queue, so a blocked caller unblocks with a failure
// rather than hanging. It runs with no queue lock held, per the
// drain-on-close design.
func (r *Router) makeDrainCB(owner registry.OwnerKey) mqueue.DrainFunc {
	return func(msg *mqueue.Message) {
		if msg.Type != mqueue.Transaction {
			return
		}
		payload, ok := msg.Payload.(*TransactionPayload)
		if !ok || payload.ReplyQueue == nil {
			return
		}
		_ = payload.ReplyQueue.PushTail(&mqueue.Message{
			Type:    mqueue.DeadReply,
			Payload: &DeadBinderPayload{},
		})
		if payload.ReplyWorker != nil {
			payload.ReplyWorker.decrementPendingReplies()
		}
		payload.ReplyQueue.Release()
	}
}

// SetContextManager binds the well-known context-manager object to owner.
// Only the first caller binds it; later callers from a different euid are
// rejected.
func (r *Router) SetContextManager(owner registry.OwnerKey, euid uint32) error {
	r.ctxMu.Lock()
	defer r.ctxMu.Unlock()

	if r.ctxBound && r.ctxEUID != euid {
		return errs.New("SetContextManager", errs.PermissionDenied, "context manager already bound by a different euid")
	}
	if r.ctxBound {
		return errs.New("SetContextManager", errs.Busy, "context manager already bound")
	}
	r.ctxBound = true
	r.ctxEUID = euid
	r.ctxOwner = owner
	return nil
}

func (r *Router) unbindContextManagerIfOwner(owner registry.OwnerKey) {
	r.ctxMu.Lock()
	defer r.ctxMu.Unlock()
	if r.ctxBound && r.ctxOwner == owner {
		r.ctxBound = false
	}
}

// ContextManagerProcess resolves the currently-bound context manager, if
// any.
func (r *Router) ContextManagerProcess() (*Process, bool) {
	r.ctxMu.Lock()
	bound, owner := r.ctxBound, r.ctxOwner
	r.ctxMu.Unlock()
	if !bound {
		return nil, false
	}
	return r.Lookup(owner)
}
