package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), OTelConfig{Enabled: false}, nil)

	assert.NoError(t, err)
	assert.Nil(t, tp)
}

// OTLP exporters connect lazily, so creation succeeds without a collector
func TestInitTracing_Enabled(t *testing.T) {
	cfg := OTelConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "permcache-test",
		ServiceVersion: "test",
		Insecure:       true,
	}

	tp, err := InitTracing(context.Background(), cfg, NopLogger())
	require.NoError(t, err)
	require.NotNil(t, tp)

	assert.NoError(t, ShutdownTracing(context.Background(), tp, NopLogger()))
}

func TestShutdownTracing_Nil(t *testing.T) {
	assert.NoError(t, ShutdownTracing(context.Background(), nil, nil))
}

func TestLoggerWithTraceContext(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	var buf bytes.Buffer
	logger := NewLogger("info", "json", &buf)

	t.Run("without span", func(t *testing.T) {
		buf.Reset()
		LoggerWithTraceContext(context.Background(), logger).Info("no span")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.NotContains(t, entry, "trace_id")
	})

	t.Run("with span", func(t *testing.T) {
		buf.Reset()
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		LoggerWithTraceContext(ctx, logger).Info("in span")
		span.End()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
		assert.Len(t, recorder.Ended(), 1)
	})
}
