// Package telemetry provides the logging, metrics, and tracing interfaces
// used by the agent loop: it opens spans for each step, the transformContext
// hook, the provider stream and tool dispatch, times the step, stream and
// dispatch, and counts tool calls. Individual tool executions, session store
// appends and the stop-condition evaluation get no span of their own; the
// Session Recorder only logs failed appends. A no-op
// implementation is the default; NewClueLogger/NewOTelMetrics/NewOTelTracer
// wire to goa.design/clue/log and go.opentelemetry.io/otel for production use.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime. The
// interface is intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Telemetry bundles the three facets the agent loop needs at construction
// time. A zero value is not usable; use NewNoop for a safe default.
type Telemetry struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// NewNoop returns a Telemetry bundle that discards all output.
func NewNoop() Telemetry {
	return Telemetry{Logger: NoopLogger{}, Metrics: NoopMetrics{}, Tracer: NoopTracer{}}
}
