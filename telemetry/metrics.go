package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by all instruments and spans. The operation label is
// the sole disambiguator between the two invocation paths, so every
// measurement must carry it.
const (
	AttrOperation = "operation"
	AttrModel     = "model"
)

// Metrics holds the pre-registered instruments for token accounting and
// invocation latency. Instruments are synchronous: every Add/Record is
// aggregated in-process immediately, so increments are conserved even when
// the exporter is slow — export batching happens out of band.
//
// Safe for concurrent use after creation.
type Metrics struct {
	// InputTokens counts prompt-side tokens per operation.
	InputTokens metric.Int64Counter

	// CompletionTokens counts generated tokens per operation.
	CompletionTokens metric.Int64Counter

	// TotalTokens counts input+completion tokens per operation.
	TotalTokens metric.Int64Counter

	// InvocationDuration records full invocation latency in milliseconds.
	InvocationDuration metric.Float64Histogram
}

// NewMetrics registers all instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.InputTokens, err = meter.Int64Counter(
		"skillprobe_input_tokens_total",
		metric.WithDescription("Total input (prompt) tokens"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create input_tokens_total: %w", err)
	}

	m.CompletionTokens, err = meter.Int64Counter(
		"skillprobe_completion_tokens_total",
		metric.WithDescription("Total completion (generated) tokens"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create completion_tokens_total: %w", err)
	}

	m.TotalTokens, err = meter.Int64Counter(
		"skillprobe_total_tokens_total",
		metric.WithDescription("Total input+completion tokens"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create total_tokens_total: %w", err)
	}

	m.InvocationDuration, err = meter.Float64Histogram(
		"skillprobe_invocation_duration_milliseconds",
		metric.WithDescription("Invocation latency in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000),
	)
	if err != nil {
		return nil, fmt.Errorf("create invocation_duration: %w", err)
	}

	return m, nil
}

// attrs builds the standard attribute set for one invocation path.
func attrs(operation, model string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String(AttrOperation, operation),
		attribute.String(AttrModel, model),
	)
}

// AddInputTokens records prompt tokens for one path.
func (m *Metrics) AddInputTokens(ctx context.Context, n int, operation, model string) {
	m.InputTokens.Add(ctx, int64(n), attrs(operation, model))
}

// AddCompletionTokens records generated tokens for one path.
func (m *Metrics) AddCompletionTokens(ctx context.Context, n int, operation, model string) {
	m.CompletionTokens.Add(ctx, int64(n), attrs(operation, model))
}

// AddTotalTokens records the combined token figure for one path.
func (m *Metrics) AddTotalTokens(ctx context.Context, n int, operation, model string) {
	m.TotalTokens.Add(ctx, int64(n), attrs(operation, model))
}

// RecordDuration records a full invocation latency observation.
func (m *Metrics) RecordDuration(ctx context.Context, d time.Duration, operation, model string) {
	m.InvocationDuration.Record(ctx, float64(d)/float64(time.Millisecond), attrs(operation, model))
}
