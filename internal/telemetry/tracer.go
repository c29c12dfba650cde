package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	tracer     trace.Tracer
	tracerOnce sync.Once
)

// SetTracer installs the tracer used by StartSpan. Call this once during
// startup with a real tracer from an application-wired TracerProvider; if
// never called, Tracer falls back to a no-op tracer so span calls are safe
// in every environment, including tests.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// Tracer returns the installed tracer, defaulting to a no-op one.
func Tracer() trace.Tracer {
	tracerOnce.Do(func() {
		if tracer == nil {
			tracer = noop.NewTracerProvider().Tracer("binder")
		}
	})
	if tracer == nil {
		return noop.NewTracerProvider().Tracer("binder")
	}
	return tracer
}

// Span names for control-surface and routing operations.
const (
	SpanOpen             = "binder.open"
	SpanRelease          = "binder.release"
	SpanWriteRead        = "binder.write_read"
	SpanTransaction      = "binder.transaction"
	SpanDeathNotify      = "binder.death_notify"
	SpanSetContextManager = "binder.set_context_manager"
)

// StartSpan starts a span with the given name, falling back to the no-op
// tracer if none has been installed.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records err on the span in ctx, if any, and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// PID returns an attribute for a process id.
func PID(pid uint32) attribute.KeyValue {
	return attribute.Int64("binder.pid", int64(pid))
}

// ThreadID returns an attribute for an OS thread id.
func ThreadID(id uint64) attribute.KeyValue {
	return attribute.Int64("binder.thread_id", int64(id))
}

// Opcode returns an attribute naming a BC_*/BR_* opcode.
func Opcode(name string) attribute.KeyValue {
	return attribute.String("binder.opcode", name)
}

// TransactionCode returns an attribute for a transaction's user-defined code.
func TransactionCode(code uint32) attribute.KeyValue {
	return attribute.Int64("binder.code", int64(code))
}
