package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"uberfuzz/config"
)

// TelemetryImpl is the concrete Telemetry provider. Uberfuzz is a single
// long-running local binary, not a clustered service shipping spans to a
// shared collector fleet, so the default exporter is stdouttrace rather
// than forcing an OTLP endpoint; otlptracegrpc is still wired in as the
// production path when config.AppConfig.OTLPEndpoint names a collector.
type TelemetryImpl struct {
	tracer trace.Tracer
}

type TelemetryParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.AppConfig
}

func NewTelemetry(p TelemetryParams) (Telemetry, error) {
	ctx, cancel := context.WithCancel(context.Background())

	exporter, err := newSpanExporter(ctx, p.Config.OTLPEndpoint)
	if err != nil {
		cancel()
		return nil, err
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			attribute.String("service.name", p.Config.ServiceName),
		)),
	)
	otel.SetTracerProvider(traceProvider)
	tracer := traceProvider.Tracer(p.Config.ServiceName)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			cancel()
			return traceProvider.Shutdown(ctx)
		},
	})

	return &TelemetryImpl{tracer: tracer}, nil
}

func newSpanExporter(ctx context.Context, otlpEndpoint string) (sdktrace.SpanExporter, error) {
	if otlpEndpoint == "" {
		return stdouttrace.New(stdouttrace.WithoutTimestamps())
	}
	return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(otlpEndpoint), otlptracegrpc.WithInsecure())
}

func (t *TelemetryImpl) GetTracer() trace.Tracer {
	return t.tracer
}
