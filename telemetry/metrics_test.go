package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	m, err := NewMetrics(meter)
	require.NoError(t, err)
	require.NotNil(t, m.InputTokens)
	require.NotNil(t, m.CompletionTokens)
	require.NotNil(t, m.TotalTokens)
	require.NotNil(t, m.InvocationDuration)
}

func TestMetrics_CountersKeyedByOperation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	m, err := NewMetrics(meter)
	require.NoError(t, err)

	ctx := context.Background()
	m.AddInputTokens(ctx, 7, "plugin_function", "test-model")
	m.AddInputTokens(ctx, 5, "direct_chat", "test-model")
	m.AddCompletionTokens(ctx, 3, "plugin_function", "test-model")
	m.AddCompletionTokens(ctx, 1, "plugin_function", "test-model")

	metrics := collect(t, reader)

	input, ok := metrics["skillprobe_input_tokens_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, input.DataPoints, 2) // one series per operation

	completion, ok := metrics["skillprobe_completion_tokens_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, completion.DataPoints, 1)
	// increments are conserved: two adds sum to one series value
	assert.Equal(t, int64(4), completion.DataPoints[0].Value)
}

func TestMetrics_RecordDuration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	m, err := NewMetrics(meter)
	require.NoError(t, err)

	m.RecordDuration(context.Background(), 1500*time.Millisecond, "direct_chat", "test-model")

	metrics := collect(t, reader)
	hist, ok := metrics["skillprobe_invocation_duration_milliseconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.Equal(t, 1500.0, hist.DataPoints[0].Sum)
}

func TestInit_StdoutExportersWriteToConfiguredWriter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf

	providers, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	_, span := providers.Tracer().Start(context.Background(), "skill.invoke")
	span.End()

	require.NoError(t, providers.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "skill.invoke")
}

func TestInit_NoneExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ExporterNone

	providers, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "jaeger"

	_, err := Init(context.Background(), cfg)
	assert.ErrorContains(t, err, `unknown trace exporter "jaeger"`)
}
