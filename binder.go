// Package binder provides an in-process, Binder-style IPC dispatcher: a
// process opens a session against a shared Dispatcher and drives it with
// write_read the same way a real binder device node is driven, except
// every call here is an ordinary Go method instead of an ioctl.
package binder

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openbinder/binder/internal/ctrl"
	"github.com/openbinder/binder/internal/logging"
	"github.com/openbinder/binder/internal/telemetry"
)

// Options configures a Dispatcher. The zero value is a usable Dispatcher
// with no metrics registered and the package's default logger.
type Options struct {
	// Logger receives structured debug/info messages. Nil keeps the
	// package-wide default logger.
	Logger *logging.Logger

	// MetricsRegisterer, if set, registers a Prometheus collector exposing
	// the dispatcher's counters. Nil disables metrics recording.
	MetricsRegisterer prometheus.Registerer
}

// Dispatcher is the process-independent control surface every open Process
// shares, mirroring a single binder device node visible to every process
// that opens it.
type Dispatcher struct {
	ctrl *ctrl.Controller
}

// NewDispatcher creates a Dispatcher with an empty process table.
func NewDispatcher(opts *Options) *Dispatcher {
	if opts == nil {
		opts = &Options{}
	}

	c := ctrl.NewController()
	if opts.Logger != nil {
		c.SetLogger(opts.Logger)
	}
	if opts.MetricsRegisterer != nil {
		c.SetMetrics(telemetry.NewMetrics(opts.MetricsRegisterer))
	}

	return &Dispatcher{ctrl: c}
}

// OpenOptions configures Open. It is a type alias for ctrl.OpenOptions so
// callers never need to import internal/ctrl directly.
type OpenOptions = ctrl.OpenOptions

// ProtocolVersion reports the control protocol a host negotiates against
// before driving write_read.
type ProtocolVersion = ctrl.ProtocolVersion

// Stats reports a process's queue depth, thread pool occupancy and
// registry size.
type Stats = ctrl.Stats

// Version reports the dispatcher's control protocol version and the
// maximum accepted single-transaction payload.
func (d *Dispatcher) Version() ProtocolVersion {
	return d.ctrl.Version()
}

// Open creates a new process record bound to opts.PID/opts.EUID.
func (d *Dispatcher) Open(ctx context.Context, opts OpenOptions) *Process {
	return &Process{dispatcher: d, session: d.ctrl.Open(ctx, opts)}
}

// Process is what Open returns: a calling process's binding to the
// dispatcher, analogous to the file descriptor a real binder open() call
// hands back.
type Process struct {
	dispatcher *Dispatcher
	session    *ctrl.Session
}

// Release tears the process down: every notifier it holds fires as a
// death notification, every worker's private queue closes, and its
// context-manager binding is released if it held one. Release is
// idempotent.
func (p *Process) Release(ctx context.Context) {
	p.dispatcher.ctrl.Release(ctx, p.session)
}

// WriteRead applies every BC_* record in writeBuf for the calling OS
// thread, then fills up to readCapacity bytes of BR_* records for that
// same thread. A caller that wants stable worker identity across
// successive calls must pin itself with runtime.LockOSThread.
func (p *Process) WriteRead(ctx context.Context, writeBuf []byte, readCapacity int) (written int, readBuf []byte, err error) {
	written, readBuf, err = p.dispatcher.ctrl.WriteRead(ctx, p.session, writeBuf, readCapacity)
	if err != nil {
		err = wrapInternal(err)
	}
	return written, readBuf, err
}

// SetMaxThreads updates the process's worker budget.
func (p *Process) SetMaxThreads(n int) {
	p.dispatcher.ctrl.SetMaxThreads(p.session, n)
}

// SetContextManager binds the well-known context-manager object to this
// process. Only the first caller across the dispatcher succeeds; a later
// caller with a different effective uid is rejected.
func (p *Process) SetContextManager(ctx context.Context) error {
	if err := p.dispatcher.ctrl.SetContextManager(ctx, p.session); err != nil {
		return wrapInternal(err)
	}
	return nil
}

// Stats snapshots the process's current queue depth, thread pool
// occupancy and registry size.
func (p *Process) Stats() Stats {
	return p.session.Stats()
}
