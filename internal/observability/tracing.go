package observability

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope of planner spans.
const TracerName = "reelquery.planner"

// Tracer starts one span per pipeline stage. The zero value is not usable;
// use NewTracer, NewTracerWithExporter or NoopTracer.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}
}

// NewTracer returns a tracer that pretty-prints finished spans to w when
// enabled, and a no-op tracer otherwise.
func NewTracer(enabled bool, w io.Writer) (*Tracer, error) {
	if !enabled {
		return NoopTracer(), nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	return NewTracerWithExporter(exp, false), nil
}

// NewTracerWithExporter exports spans through exp. sync exports each span
// as it ends, which tests rely on.
func NewTracerWithExporter(exp sdktrace.SpanExporter, sync bool) *Tracer {
	opt := sdktrace.WithBatcher(exp)
	if sync {
		opt = sdktrace.WithSyncer(exp)
	}
	tp := sdktrace.NewTracerProvider(opt)
	return &Tracer{tracer: tp.Tracer(TracerName), provider: tp}
}

// Start opens a span named after stage.
func (t *Tracer) Start(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "planner."+stage, trace.WithAttributes(attrs...))
}

// Shutdown flushes and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
