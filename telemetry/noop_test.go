package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestNewNoopBundlesAllThreeFacets(t *testing.T) {
	tel := NewNoop()
	require.NotNil(t, tel.Logger)
	require.NotNil(t, tel.Metrics)
	require.NotNil(t, tel.Tracer)
}

func TestNoopLoggerMethodsDoNotPanic(t *testing.T) {
	var l Logger = NoopLogger{}
	ctx := context.Background()
	require.NotPanics(t, func() {
		l.Debug(ctx, "debug", "k", "v")
		l.Info(ctx, "info")
		l.Warn(ctx, "warn")
		l.Error(ctx, "error", "err", errors.New("boom"))
	})
}

func TestNoopMetricsMethodsDoNotPanic(t *testing.T) {
	var m Metrics = NoopMetrics{}
	require.NotPanics(t, func() {
		m.IncCounter("calls", 1, "tool:echo")
		m.RecordTimer("latency", time.Millisecond, "tool:echo")
		m.RecordGauge("queue_depth", 3)
	})
}

func TestNoopTracerStartReturnsUsableSpan(t *testing.T) {
	var tr Tracer = NoopTracer{}
	ctx, span := tr.Start(context.Background(), "step")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	require.NotPanics(t, func() {
		span.AddEvent("started")
		span.SetStatus(codes.Error, "failed")
		span.RecordError(errors.New("boom"))
		span.End()
	})
}

func TestNoopTracerSpanReturnsUsableSpan(t *testing.T) {
	var tr Tracer = NoopTracer{}
	span := tr.Span(context.Background())
	require.NotNil(t, span)
}
