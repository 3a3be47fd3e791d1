package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps a single span's lifecycle. Uberfuzz is one local process,
// so there is no cross-process span-link machinery here.
type Tracer interface {
	Start()
	WithAttributes(attributes *SpanAttributes) Tracer
	AddEvent(name string, attributes EventAttributes)
	SetStatus(code codes.Code, message string)
	End()
}

// DummyTracer is a no-op Tracer used when telemetry is disabled.
type DummyTracer struct{}

func (t *DummyTracer) Start()                                           {}
func (t *DummyTracer) WithAttributes(attributes *SpanAttributes) Tracer { return t }
func (t *DummyTracer) AddEvent(name string, attributes EventAttributes) {}
func (t *DummyTracer) SetStatus(code codes.Code, message string)        {}
func (t *DummyTracer) End()                                             {}

type telemetryTracer struct {
	tracer     trace.Tracer
	span       trace.Span
	ctx        context.Context
	spanName   string
	attributes *SpanAttributes
	started    bool
}

func newTelemetryTracer(ctx context.Context, tracer trace.Tracer, spanName string) *telemetryTracer {
	return &telemetryTracer{
		tracer:     tracer,
		ctx:        ctx,
		spanName:   spanName,
		attributes: NewSpanAttributes(""),
	}
}

func (t *telemetryTracer) Start() {
	t.ctx, t.span = t.tracer.Start(t.ctx, t.spanName, trace.WithAttributes(t.attributes.Attributes()...))
	t.started = true
}

func (t *telemetryTracer) WithAttributes(attributes *SpanAttributes) Tracer {
	if attributes == nil {
		return t
	}
	t.attributes = attributes
	if t.started {
		t.span.SetAttributes(t.attributes.Attributes()...)
	}
	return t
}

func (t *telemetryTracer) AddEvent(name string, e EventAttributes) {
	if !t.started {
		return
	}
	t.span.AddEvent(name, trace.WithAttributes(e...))
}

func (t *telemetryTracer) SetStatus(code codes.Code, message string) {
	if !t.started {
		return
	}
	t.span.SetStatus(code, message)
}

func (t *telemetryTracer) End() {
	if !t.started {
		return
	}
	t.span.End()
}
