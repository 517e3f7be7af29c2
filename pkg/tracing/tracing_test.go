package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestStartSpanWithoutTracer(t *testing.T) {
	SetTracer(nil)
	ctx := context.Background()

	spanCtx, span := StartSpan(ctx, "test.span")
	defer span.End()

	assert.Equal(t, ctx, spanCtx)
	assert.Empty(t, GetTraceID(spanCtx))
}

func TestHeadersRoundTrip(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	defer provider.Shutdown(context.Background())
	SetTracer(provider.Tracer("test"))
	defer SetTracer(nil)

	ctx, span := StartSpan(context.Background(), "test.span")
	defer span.End()

	traceID := GetTraceID(ctx)
	require.NotEmpty(t, traceID)

	headers := InjectHeaders(ctx)
	require.Contains(t, headers, "traceparent")

	extracted := ExtractHeaders(context.Background(), headers)
	_, child := StartSpan(extracted, "test.child")
	defer child.End()
	assert.Equal(t, traceID, child.SpanContext().TraceID().String())
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Config{ServiceName: "bynight", Exporter: "zipkin"})
	assert.Error(t, err)
}
