package stream

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/skillprobe/backend"
	"github.com/hupe1980/skillprobe/telemetry"
	"github.com/hupe1980/skillprobe/tokenizer"
	"github.com/hupe1980/skillprobe/transcript"
)

func newTestMetrics(t *testing.T) (*telemetry.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := telemetry.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return metrics, reader
}

func newTestSection(t *testing.T) (*transcript.Section, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.txt")
	doc, err := transcript.Create(path)
	require.NoError(t, err)
	section, err := doc.NewSection("plugin_function", "q", time.Unix(0, 0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })
	return section, func() string {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(raw)
	}
}

// produce streams the given fragments (and optional terminal error) in the
// backend channel shape: fragments closed first, error channel after.
func produce(fragments []string, err error) (<-chan backend.Fragment, <-chan error) {
	out := make(chan backend.Fragment, len(fragments)+1)
	errCh := make(chan error, 1)
	for _, f := range fragments {
		out <- backend.Fragment{Text: f}
	}
	if err != nil {
		errCh <- err
	}
	close(out)
	close(errCh)
	return out, errCh
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func histogramCount(t *testing.T, reader *sdkmetric.ManualReader, name string) uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok, "metric %s is not a float64 histogram", name)
			for _, dp := range hist.DataPoints {
				count += dp.Count
			}
		}
	}
	return count
}

func TestAggregator_Consume(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	section, readDoc := newTestSection(t)
	tok := tokenizer.New(tokenizer.EncodingApprox)
	var console bytes.Buffer

	agg := New(Config{
		Tokenizer:   tok,
		Metrics:     metrics,
		Console:     &console,
		Section:     section,
		Operation:   backend.LabelPlugin,
		Model:       "test-model",
		InputTokens: 3,
	})

	frags, errs := produce([]string{"Tri", "care ", "is a"}, nil)
	res, err := agg.Consume(context.Background(), frags, errs)
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, backend.LabelPlugin, res.Operation)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, "Tricare is a", res.Text)
	assert.Equal(t, 3, res.InputTokens)
	assert.Equal(t, 4, res.FragmentTokens)
	assert.Equal(t, tok.Count("Tricare is a"), res.CompletionTokens)
	assert.Equal(t, res.InputTokens+res.CompletionTokens, res.TotalTokens())
	assert.Greater(t, res.Elapsed, time.Duration(0))

	// console saw the exact concatenation, in order
	assert.Equal(t, "Tricare is a", console.String())

	// the per-fragment counts feed the completion counter; the reconciled
	// figure feeds the total counter
	assert.Equal(t, int64(res.FragmentTokens), counterTotal(t, reader, "skillprobe_completion_tokens_total"))
	assert.Equal(t, int64(res.TotalTokens()), counterTotal(t, reader, "skillprobe_total_tokens_total"))
	assert.Equal(t, uint64(1), histogramCount(t, reader, "skillprobe_invocation_duration_milliseconds"))

	require.NoError(t, section.Close())
	assert.Contains(t, readDoc(), "Tricare is a\n")
}

func TestAggregator_EmptySequence(t *testing.T) {
	metrics, _ := newTestMetrics(t)
	section, _ := newTestSection(t)

	agg := New(Config{
		Tokenizer:   tokenizer.New(tokenizer.EncodingApprox),
		Metrics:     metrics,
		Section:     section,
		Operation:   backend.LabelDirect,
		InputTokens: 5,
	})

	frags, errs := produce(nil, nil)
	res, err := agg.Consume(context.Background(), frags, errs)
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, 0, res.Chunks)
	assert.Equal(t, "", res.Text)
	assert.Equal(t, 0, res.CompletionTokens)
	assert.Equal(t, 5, res.TotalTokens())
}

func TestAggregator_BackendFailureKeepsPartialState(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	section, readDoc := newTestSection(t)
	backendErr := errors.New("upstream connection reset")

	agg := New(Config{
		Tokenizer:   tokenizer.New(tokenizer.EncodingApprox),
		Metrics:     metrics,
		Section:     section,
		Operation:   backend.LabelPlugin,
		Model:       "test-model",
		InputTokens: 2,
	})

	frags, errs := produce([]string{"partial ", "answer "}, backendErr)
	res, err := agg.Consume(context.Background(), frags, errs)

	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)

	// partial accounting survives the failure
	assert.False(t, res.Completed)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, "partial answer ", res.Text)
	assert.Greater(t, res.CompletionTokens, 0)

	// telemetry accumulated before the failure is recorded, not discarded
	assert.Equal(t, int64(res.FragmentTokens), counterTotal(t, reader, "skillprobe_completion_tokens_total"))
	assert.Equal(t, uint64(1), histogramCount(t, reader, "skillprobe_invocation_duration_milliseconds"))

	// the transcript keeps the partial text
	require.NoError(t, section.Close())
	assert.Contains(t, readDoc(), "partial answer ")
}

func TestAggregator_ChunkEventsOnSpan(t *testing.T) {
	metrics, _ := newTestMetrics(t)
	section, _ := newTestSection(t)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := provider.Tracer("test").Start(context.Background(), "skill.invoke")

	agg := New(Config{
		Tokenizer: tokenizer.New(tokenizer.EncodingApprox),
		Metrics:   metrics,
		Section:   section,
		Operation: backend.LabelPlugin,
	})

	frags, errs := produce([]string{"Direct ", "answer"}, nil)
	_, err := agg.Consume(ctx, frags, errs)
	require.NoError(t, err)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	var chunkEvents int
	for _, ev := range spans[0].Events() {
		if ev.Name == EventChunkReceived {
			chunkEvents++
		}
	}
	assert.Equal(t, 2, chunkEvents)
}

func TestAggregator_ContextCancellation(t *testing.T) {
	metrics, _ := newTestMetrics(t)
	section, _ := newTestSection(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := New(Config{
		Tokenizer: tokenizer.New(tokenizer.EncodingApprox),
		Metrics:   metrics,
		Section:   section,
		Operation: backend.LabelDirect,
	})

	frags := make(chan backend.Fragment)
	errs := make(chan error)
	res, err := agg.Consume(ctx, frags, errs)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Completed)
}
