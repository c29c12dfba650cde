// Package router implements the transaction router: the write/read command
// protocol that moves transactions between queues, tracks pending replies,
// emits completion acknowledgements, and fans death notifications out when
// a process is released.
package router

import (
	"sync"
	"sync/atomic"

	"github.com/openbinder/binder/internal/logging"
	"github.com/openbinder/binder/internal/mqueue"
	"github.com/openbinder/binder/internal/registry"
	"github.com/openbinder/binder/internal/threadpool"
)

// PendingTransaction is an entry in a worker's incoming_transactions list:
// a synchronous request the worker is currently servicing, kept so its
// eventual BC_REPLY (or death fan-out) knows where to route the response.
type PendingTransaction struct {
	ReplyQueue *mqueue.Queue
	DataSize   uint32
}

// Worker is a process's per-OS-thread record: a private queue for replies
// and thread-directed work, looper state, and the synchronous-call stack
// required to route BC_REPLY.
type Worker struct {
	ThreadID uint64
	Queue    *mqueue.Queue
	State    *threadpool.WorkerState

	mu                   sync.Mutex
	pendingReplies       int32
	incomingTransactions []*PendingTransaction
	lastError            error
}

func newWorker(threadID uint64, drainCB mqueue.DrainFunc) *Worker {
	return &Worker{
		ThreadID: threadID,
		Queue:    mqueue.New(true, drainCB),
		State:    &threadpool.WorkerState{},
	}
}

// PendingReplies reports the count of synchronous calls this worker is
// still awaiting a reply for.
func (w *Worker) PendingReplies() int32 {
	return atomic.LoadInt32(&w.pendingReplies)
}

func (w *Worker) incrementPendingReplies() int32 {
	return atomic.AddInt32(&w.pendingReplies, 1)
}

func (w *Worker) decrementPendingReplies() int32 {
	return atomic.AddInt32(&w.pendingReplies, -1)
}

// PushIncoming records a synchronous request at the head of the worker's
// stack: replies are matched to the most recently received transaction
// first.
func (w *Worker) PushIncoming(pt *PendingTransaction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.incomingTransactions = append([]*PendingTransaction{pt}, w.incomingTransactions...)
}

// PopIncoming removes and returns the head of the worker's synchronous-call
// stack: the request currently being serviced, whose reply is next expected.
func (w *Worker) PopIncoming() (*PendingTransaction, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.incomingTransactions) == 0 {
		return nil, false
	}
	pt := w.incomingTransactions[0]
	w.incomingTransactions = w.incomingTransactions[1:]
	return pt, true
}

// LastError returns and clears the worker's most recent per-command
// failure, surfaced on the next read.
func (w *Worker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.lastError
	w.lastError = nil
	return err
}

func (w *Worker) setLastError(err error) {
	w.mu.Lock()
	w.lastError = err
	w.mu.Unlock()
}

// Process is a process's full record: its process-wide inbound queue,
// object registry, worker table, and thread-pool budget.
type Process struct {
	Owner       registry.OwnerKey
	PID         uint32
	EUID        uint32
	NonBlocking bool

	Queue      *mqueue.Queue
	Registry   *registry.Registry
	ThreadPool *threadpool.Controller

	threadLock sync.Mutex
	workers    map[uint64]*Worker

	log *logging.Logger
}

// NewProcess creates a process record. drainCB runs once per residual
// message when the process-wide queue is closed and fully released.
func NewProcess(owner registry.OwnerKey, pid, euid uint32, nonBlocking bool, maxThreads int, drainCB mqueue.DrainFunc) *Process {
	return &Process{
		Owner:       owner,
		PID:         pid,
		EUID:        euid,
		NonBlocking: nonBlocking,
		Queue:       mqueue.New(!nonBlocking, drainCB),
		Registry:    registry.New(owner),
		ThreadPool:  threadpool.New(maxThreads),
		workers:     make(map[uint64]*Worker),
		log:         logging.Default().With("component", "router").WithProcess(pid),
	}
}

// WorkerFor returns the worker record for threadID, creating one lazily on
// first use.
func (p *Process) WorkerFor(threadID uint64) *Worker {
	p.threadLock.Lock()
	defer p.threadLock.Unlock()
	w, ok := p.workers[threadID]
	if !ok {
		w = newWorker(threadID, nil)
		p.workers[threadID] = w
	}
	return w
}

// RemoveWorker deletes a worker's record on explicit thread-exit, closing
// its private queue.
func (p *Process) RemoveWorker(threadID uint64) {
	p.threadLock.Lock()
	w, ok := p.workers[threadID]
	delete(p.workers, threadID)
	p.threadLock.Unlock()
	if ok {
		w.Queue.Close()
	}
}

// Workers returns a snapshot of every worker currently registered, for
// release-time teardown.
func (p *Process) Workers() []*Worker {
	p.threadLock.Lock()
	defer p.threadLock.Unlock()
	out := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w)
	}
	return out
}
