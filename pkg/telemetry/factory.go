package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// Telemetry is the provider boundary the factory depends on.
type Telemetry interface {
	GetTracer() trace.Tracer
}

// TracerFactory hands out Tracers, degrading to DummyTracer when telemetry
// is disabled.
type TracerFactory struct {
	telemetry Telemetry
}

type TracerFactoryParams struct {
	fx.In
	Telemetry Telemetry `optional:"true"`
}

func NewTracerFactory(p TracerFactoryParams) *TracerFactory {
	return &TracerFactory{telemetry: p.Telemetry}
}

// NewTracer returns a Tracer for spanName, rooted at ctx.
func (f *TracerFactory) NewTracer(ctx context.Context, spanName string) Tracer {
	if f.telemetry == nil || f.telemetry.GetTracer() == nil {
		return &DummyTracer{}
	}
	return newTelemetryTracer(ctx, f.telemetry.GetTracer(), spanName)
}
