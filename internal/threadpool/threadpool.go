// Package threadpool tracks the registered/entered/pending worker counts for
// a process and the per-worker looper state machine that drives them.
package threadpool

import (
	"sync"

	"github.com/openbinder/binder/internal/logging"
)

// State is a worker's position in the looper state machine.
type State int

const (
	Fresh State = iota
	Pending
	Entered
	Exited
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Pending:
		return "pending"
	case Entered:
		return "entered"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// WorkerState is the thread-pool-facing half of a worker record: its
// current looper state, guarded by its own lock so state transitions don't
// contend with the process-wide counters except at the moment they change.
type WorkerState struct {
	mu    sync.Mutex
	state State
}

// Current reports the worker's state.
func (w *WorkerState) Current() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Controller owns num_loopers and pending_loopers for one process and
// enforces the looper state machine's transition rules. All methods are
// safe for concurrent use by multiple workers of the same process.
type Controller struct {
	mu             sync.Mutex
	maxThreads     int
	numLoopers     int
	pendingLoopers int
	log            *logging.Logger
}

// New creates a controller with the given worker budget.
func New(maxThreads int) *Controller {
	return &Controller{
		maxThreads: maxThreads,
		log:        logging.Default().With("component", "threadpool"),
	}
}

// SetMaxThreads updates the worker budget.
func (c *Controller) SetMaxThreads(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxThreads = n
}

// Counts returns the current num_loopers and pending_loopers, used to
// enforce the max-threads budget and to decide BR_SPAWN_LOOPER.
func (c *Controller) Counts() (numLoopers, pendingLoopers int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numLoopers, c.pendingLoopers
}

// ErrAlreadyActive is returned by RegisterLooper and EnterLooper when the
// worker is already in the Entered state.
var ErrAlreadyActive = stateErr("worker already entered")

// ErrNotEntered is returned by ExitLooper when the worker is not Entered.
var ErrNotEntered = stateErr("worker not entered")

type stateErr string

func (e stateErr) Error() string { return string(e) }

// RegisterLooper handles BC_REGISTER_LOOPER: Fresh -> Pending, honouring one
// previously emitted spawn request.
func (c *Controller) RegisterLooper(w *WorkerState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Entered {
		return ErrAlreadyActive
	}
	w.state = Pending

	c.mu.Lock()
	if c.pendingLoopers > 0 {
		c.pendingLoopers--
	}
	c.mu.Unlock()
	return nil
}

// EnterLooper handles BC_ENTER_LOOPER: Fresh|Pending -> Entered.
func (c *Controller) EnterLooper(w *WorkerState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Entered {
		return ErrAlreadyActive
	}
	w.state = Entered

	c.mu.Lock()
	c.numLoopers++
	c.mu.Unlock()
	return nil
}

// ExitLooper handles BC_EXIT_LOOPER: Entered -> Exited.
func (c *Controller) ExitLooper(w *WorkerState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Entered {
		return ErrNotEntered
	}
	w.state = Exited

	c.mu.Lock()
	c.numLoopers--
	c.mu.Unlock()
	return nil
}

// ShouldSpawn reports whether a read call should emit BR_SPAWN_LOOPER:
// the process-wide queue has more than one pending message and the pool
// budget allows another worker. On true, it reserves the spawn by
// incrementing pending_loopers.
func (c *Controller) ShouldSpawn(processQueueSize int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if processQueueSize <= 1 {
		return false
	}
	if c.numLoopers+c.pendingLoopers >= c.maxThreads {
		return false
	}
	c.pendingLoopers++
	return true
}
