// Package stream implements the streaming-response instrumentation pipeline:
// an Aggregator consumes one invocation's fragment sequence in production
// order, maintains running token and character counts, forwards each
// fragment to the live console and the durable transcript while it is still
// arriving, and emits one trace event per fragment plus final metrics at
// exhaustion.
//
// Token accounting policy: each fragment is tokenized independently and that
// per-fragment count drives the incremental completion-token metric and the
// per-fragment trace event. The authoritative completion figure is recounted
// from the full concatenated text at exhaustion; it feeds the total-token
// metric and the comparison summary. The two figures differ when a token
// group spans a fragment boundary, so both are kept on the Result.
package stream

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/skillprobe/backend"
	"github.com/hupe1980/skillprobe/logging"
	"github.com/hupe1980/skillprobe/telemetry"
	"github.com/hupe1980/skillprobe/tokenizer"
	"github.com/hupe1980/skillprobe/transcript"
)

// EventChunkReceived is the trace event recorded per consumed fragment.
const EventChunkReceived = "ChunkReceived"

// Result is the accounting record of one aggregated invocation. It is
// mutated only by the owning Aggregator during consumption and is final
// once Consume returns.
type Result struct {
	// Operation is the path label this result belongs to.
	Operation backend.Label

	// Chunks is the number of fragments consumed.
	Chunks int

	// Text is the full concatenated output.
	Text string

	// InputTokens is the prompt-side count, computed once up front.
	InputTokens int

	// FragmentTokens is the running sum of per-fragment counts.
	FragmentTokens int

	// CompletionTokens is the recount over the full concatenation.
	CompletionTokens int

	// Elapsed is the wall time from first request to sequence end.
	Elapsed time.Duration

	// Completed is false when the sequence terminated abnormally; the
	// remaining fields then describe the partial state at failure.
	Completed bool
}

// TotalTokens returns input plus final completion tokens.
func (r Result) TotalTokens() int { return r.InputTokens + r.CompletionTokens }

// Config wires an Aggregator's collaborators. Tokenizer, Metrics and Section
// are required; Console defaults to io.Discard and Logger to NoOpLogger.
type Config struct {
	Tokenizer   *tokenizer.Tokenizer
	Metrics     *telemetry.Metrics
	Console     io.Writer
	Section     *transcript.Section
	Logger      logging.Logger
	Operation   backend.Label
	Model       string
	InputTokens int
}

// Aggregator drives one fragment sequence to completion. One instance per
// invocation; not reusable.
type Aggregator struct {
	cfg Config
}

// New constructs an Aggregator for a single invocation.
func New(cfg Config) *Aggregator {
	if cfg.Console == nil {
		cfg.Console = io.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &Aggregator{cfg: cfg}
}

// Consume receives fragments until the sequence is exhausted, processing
// each fully (accounting, telemetry, console, transcript) before requesting
// the next — at most one fragment is in flight. On abnormal termination the
// telemetry accumulated so far is still recorded, the partial Result is
// returned alongside the error, and the transcript keeps the partial text.
//
// The trace events are scoped to the span carried by ctx.
func (a *Aggregator) Consume(ctx context.Context, frags <-chan backend.Fragment, errs <-chan error) (Result, error) {
	start := time.Now()
	span := trace.SpanFromContext(ctx)
	res := Result{Operation: a.cfg.Operation, InputTokens: a.cfg.InputTokens}
	var text strings.Builder

	for {
		select {
		case <-ctx.Done():
			return a.abort(ctx, span, &res, &text, start, ctx.Err())
		case frag, ok := <-frags:
			if !ok {
				if err := a.terminalError(ctx, errs); err != nil {
					return a.abort(ctx, span, &res, &text, start, fmt.Errorf("backend invocation: %w", err))
				}
				res.Completed = true
				a.finalize(ctx, &res, &text, start)
				return res, nil
			}
			if err := a.process(ctx, span, &res, &text, frag); err != nil {
				return a.abort(ctx, span, &res, &text, start, err)
			}
		}
	}
}

// process handles a single fragment in the mandated order: tokenize, append,
// count, trace, console, transcript.
func (a *Aggregator) process(ctx context.Context, span trace.Span, res *Result, text *strings.Builder, frag backend.Fragment) error {
	tokens := a.cfg.Tokenizer.Count(frag.Text)
	text.WriteString(frag.Text)
	res.Chunks++
	res.FragmentTokens += tokens

	a.cfg.Metrics.AddCompletionTokens(ctx, tokens, string(a.cfg.Operation), a.cfg.Model)

	span.AddEvent(EventChunkReceived, trace.WithAttributes(
		attribute.Int("chunk.index", res.Chunks-1),
		attribute.Int("chunk.length", len(frag.Text)),
		attribute.Int("chunk.tokens", tokens),
	))

	if _, err := io.WriteString(a.cfg.Console, frag.Text); err != nil {
		// the console is a live convenience sink, not the artifact of record
		a.cfg.Logger.Warn("console write failed",
			"operation", a.cfg.Operation, "error", err)
	}

	if err := a.cfg.Section.Append(frag.Text); err != nil {
		return err
	}
	return nil
}

// terminalError retrieves the producer's terminal error, if any, once the
// fragment channel is closed. The producer closes the error channel after
// the fragment channel, so this does not block past sequence end.
func (a *Aggregator) terminalError(ctx context.Context, errs <-chan error) error {
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finalize stops the clock, recounts the full text and records the final
// total-token and latency observations.
func (a *Aggregator) finalize(ctx context.Context, res *Result, text *strings.Builder, start time.Time) {
	res.Text = text.String()
	res.CompletionTokens = a.cfg.Tokenizer.Count(res.Text)
	res.Elapsed = time.Since(start)

	op := string(a.cfg.Operation)
	a.cfg.Metrics.AddTotalTokens(ctx, res.TotalTokens(), op, a.cfg.Model)
	a.cfg.Metrics.RecordDuration(ctx, res.Elapsed, op, a.cfg.Model)
}

// abort finalizes the partial accounting so the telemetry gathered before
// the failure is kept, logs the failure context and propagates the error.
func (a *Aggregator) abort(ctx context.Context, span trace.Span, res *Result, text *strings.Builder, start time.Time, err error) (Result, error) {
	a.finalize(ctx, res, text, start)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	a.cfg.Logger.Error("fragment sequence terminated abnormally",
		"operation", a.cfg.Operation,
		"elapsed", res.Elapsed,
		"chunks", res.Chunks,
		"completion_tokens", res.CompletionTokens,
		"error", err)
	return *res, err
}
