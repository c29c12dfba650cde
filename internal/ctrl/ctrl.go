// Package ctrl implements the five-call control surface a host uses to
// drive the transaction router: open, release, write_read, set_max_threads
// and set_context_manager, plus a version probe. It plays the role a
// kernel driver's ioctl dispatch plays for a real binder device node, but
// every call here is an ordinary Go method on a Controller.
package ctrl

import (
	"context"
	"sync/atomic"

	"github.com/openbinder/binder/internal/constants"
	"github.com/openbinder/binder/internal/errs"
	"github.com/openbinder/binder/internal/logging"
	"github.com/openbinder/binder/internal/router"
	"github.com/openbinder/binder/internal/telemetry"
)

// protocolMajor/protocolMinor are bumped whenever the wire framing in
// internal/wire changes, respectively incompatibly or compatibly.
const (
	protocolMajor = 1
	protocolMinor = 0
)

// ProtocolVersion is what Version reports: the control protocol a host
// negotiates against before it drives write_read, mirroring the pair of
// facts a BINDER_VERSION ioctl hands back on a real device node.
type ProtocolVersion struct {
	Major              uint32
	Minor              uint32
	MaxTransactionSize int
}

// Sender identifies the caller behind a Host: the same (pid, euid, tid)
// triple a real binder device reads off the calling task.
type Sender struct {
	PID      uint32
	EUID     uint32
	ThreadID uint64
}

// Host describes a caller of WriteRead: the identity behind the call and
// whether the call should block waiting for work. WriteRead does not take
// a Host; it identifies the worker by the calling OS thread. MockHost in
// the root package implements this interface.
type Host interface {
	// Sender reports who is making the call.
	Sender() Sender
	// NonBlocking reports whether a read with nothing ready should return
	// immediately instead of waiting.
	NonBlocking() bool
}

// Controller is the process-independent control surface: one Controller
// backs every open Session, mirroring a single binder device node shared
// by every process that opens it.
type Controller struct {
	router  *router.Router
	logger  *logging.Logger
	metrics *telemetry.Metrics
}

// NewController creates a Controller with an empty router and no metrics
// registered. Use SetMetrics to attach a Prometheus collector.
func NewController() *Controller {
	return &Controller{
		router: router.New(),
		logger: logging.Default().With("component", "ctrl"),
	}
}

// SetMetrics attaches a metrics collector. A nil *Metrics (the zero value
// of this field) makes every recording call a no-op, so this is optional.
func (c *Controller) SetMetrics(m *telemetry.Metrics) {
	c.metrics = m
	c.router.SetMetrics(m)
}

// MetricsCollector returns the attached metrics, or nil if none were set.
func (c *Controller) MetricsCollector() *telemetry.Metrics {
	return c.metrics
}

// SetLogger overrides the controller's logger.
func (c *Controller) SetLogger(logger *logging.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// OpenOptions configures Open. MaxThreads caps the worker pool the same
// way BINDER_SET_MAX_THREADS does later, except here it is supplied up
// front; a zero value falls back to the package default. NonBlocking
// mirrors O_NONBLOCK on a real binder node: a read on the process-wide
// queue returns immediately instead of waiting when empty.
type OpenOptions struct {
	PID         uint32
	EUID        uint32
	NonBlocking bool
	MaxThreads  int
}

// Session is what Open returns: a calling process's binding to the
// controller, analogous to the file descriptor a real binder open() call
// hands back.
type Session struct {
	process *router.Process
	closed  atomic.Bool
}

// Stats reports a session's process-wide queue depth, thread pool
// occupancy and registry size at the moment of the call: the facts a
// supervisor needs to judge whether a process is keeping up.
type Stats struct {
	NumLoopers     int
	PendingLoopers int
	QueueDepth     int
	RegistrySize   int
}

// Stats snapshots the session's process state.
func (s *Session) Stats() Stats {
	numLoopers, pendingLoopers := s.process.ThreadPool.Counts()
	return Stats{
		NumLoopers:     numLoopers,
		PendingLoopers: pendingLoopers,
		QueueDepth:     s.process.Queue.Size(),
		RegistrySize:   s.process.Registry.Len(),
	}
}

// Open creates a new process record bound to opts.PID/opts.EUID.
func (c *Controller) Open(ctx context.Context, opts OpenOptions) *Session {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanOpen, telemetry.PID(opts.PID))
	defer span.End()

	maxThreads := opts.MaxThreads
	if maxThreads <= 0 {
		maxThreads = constants.DefaultMaxThreads
	}
	p := c.router.OpenProcess(opts.PID, opts.EUID, opts.NonBlocking, maxThreads)
	c.metrics.RecordOpen()
	c.logger.Debug("open", "pid", opts.PID, "owner", p.Owner.ID, "max_threads", maxThreads)
	return &Session{process: p}
}

// Release tears the session's process down: every notifier it holds fires
// as a death notification, every worker's private queue closes, and its
// context-manager binding is released if it held one. Release is
// idempotent; calling it twice is a no-op the second time.
func (c *Controller) Release(ctx context.Context, s *Session) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	_, span := telemetry.StartSpan(ctx, telemetry.SpanRelease, telemetry.PID(s.process.PID))
	defer span.End()

	c.router.ReleaseProcess(s.process.Owner)
	c.metrics.RecordRelease()
	c.logger.Debug("release", "pid", s.process.PID, "owner", s.process.Owner.ID)
}

// WriteRead is the combined write_commands/read_commands call a real
// binder ioctl performs in one syscall: it applies every BC_* record in
// writeBuf for the calling thread, then fills up to readCapacity bytes of
// BR_* records for that same thread. The calling goroutine's OS thread
// identifies the worker, so a caller that wants stable worker identity
// across successive calls must pin itself with runtime.LockOSThread.
//
// ctx governs only the blocking wait inside the read phase; the write
// phase never blocks. A read that finds nothing ready returns an empty
// buffer with no error rather than waiting forever on a non-blocking
// session.
func (c *Controller) WriteRead(ctx context.Context, s *Session, writeBuf []byte, readCapacity int) (written int, readBuf []byte, err error) {
	if s.closed.Load() {
		return 0, nil, errs.New("write_read", errs.InvalidArgument, "session already released")
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanWriteRead, telemetry.PID(s.process.PID))
	defer span.End()

	thread := s.process.WorkerFor(currentThreadID())

	if len(writeBuf) > 0 {
		written, err = c.router.WriteCommands(s.process, thread, writeBuf)
		if err != nil {
			telemetry.RecordError(ctx, err)
			c.metrics.RecordError(errorKind(err))
			return written, nil, err
		}
	}

	c.metrics.RecordQueueDepth(s.process.Queue.Size())

	if readCapacity <= 0 {
		return written, nil, nil
	}

	readBuf, err = c.router.ReadCommands(ctx, s.process, thread, readCapacity)
	if err != nil {
		telemetry.RecordError(ctx, err)
		c.metrics.RecordError(errorKind(err))
		return written, readBuf, err
	}

	if lastErr := thread.LastError(); lastErr != nil {
		telemetry.RecordError(ctx, lastErr)
		c.metrics.RecordError(errorKind(lastErr))
		return written, readBuf, lastErr
	}
	return written, readBuf, nil
}

func errorKind(err error) string {
	if kind, ok := errs.KindOf(err); ok {
		return string(kind)
	}
	return "unknown"
}

// SetMaxThreads updates the calling process's worker budget.
func (c *Controller) SetMaxThreads(s *Session, n int) {
	s.process.ThreadPool.SetMaxThreads(n)
	c.logger.Debug("set_max_threads", "pid", s.process.PID, "max_threads", n)
}

// SetContextManager binds the well-known context-manager object to the
// session's process. Only the first caller succeeds; a later caller with a
// different effective uid is rejected.
func (c *Controller) SetContextManager(ctx context.Context, s *Session) error {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanSetContextManager, telemetry.PID(s.process.PID))
	defer span.End()

	if err := c.router.SetContextManager(s.process.Owner, s.process.EUID); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	c.logger.Info("set_context_manager", "pid", s.process.PID)
	return nil
}

// Version reports the control protocol version and the maximum accepted
// single-transaction payload, the facts a host needs before it can safely
// drive write_read.
func (c *Controller) Version() ProtocolVersion {
	return ProtocolVersion{
		Major:              protocolMajor,
		Minor:              protocolMinor,
		MaxTransactionSize: constants.MaxTransactionSize,
	}
}
