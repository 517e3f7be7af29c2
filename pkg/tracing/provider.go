package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/bynight/pkg/tracing/exporters"
)

type Config struct {
	ServiceName  string
	Exporter     string // "console" or "otlp"
	OTLPEndpoint string
	OTLPProtocol string
	OTLPInsecure bool
	SampleRatio  float64
}

// Setup builds the tracer provider, registers it globally and sets the package tracer.
// The returned function flushes and stops the provider.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", "console":
		exporter = &exporters.ConsoleExporter{}
	case "otlp":
		otlpCfg := exporters.DefaultOTLPConfig()
		if cfg.OTLPEndpoint != "" {
			otlpCfg.Endpoint = cfg.OTLPEndpoint
		}
		if cfg.OTLPProtocol != "" {
			otlpCfg.Protocol = cfg.OTLPProtocol
		}
		otlpCfg.Insecure = cfg.OTLPInsecure
		exp, err := exporters.NewOTLPExporter(ctx, otlpCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	SetTracer(provider.Tracer(cfg.ServiceName))

	return provider.Shutdown, nil
}
