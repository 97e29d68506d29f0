// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/stepherg/sonosgw/internal/config"
)

const serviceName = "sonosgw"

// Setup builds a tracer provider for cfg and installs it globally. Spans are
// always recorded; cfg.Exporter decides whether they leave the process.
// Call Shutdown on the returned provider to flush it.
func Setup(cfg config.Tracing) (*sdktrace.TracerProvider, error) {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch cfg.Exporter {
	case config.TracingNone:
	case config.TracingStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, errors.Wrap(err, "stdout exporter")
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case config.TracingJaeger:
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
		if err != nil {
			return nil, errors.Wrap(err, "jaeger exporter")
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	default:
		return nil, errors.Errorf("unknown tracing exporter %q", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	return tp.Shutdown(ctx)
}
