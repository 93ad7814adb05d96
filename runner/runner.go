// Package runner coordinates the two invocation paths being compared: the
// skill-mediated path and the direct chat path. Paths execute strictly in
// sequence so console output stays readable and per-path latency is not
// polluted by interleaving; each path gets a fresh aggregator, its own trace
// span and its own transcript section. After both paths finish the runner
// assembles the comparison summary and appends it to the document.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/skillprobe/backend"
	"github.com/hupe1980/skillprobe/internal/util"
	"github.com/hupe1980/skillprobe/logging"
	"github.com/hupe1980/skillprobe/skill"
	"github.com/hupe1980/skillprobe/stream"
	"github.com/hupe1980/skillprobe/telemetry"
	"github.com/hupe1980/skillprobe/tokenizer"
	"github.com/hupe1980/skillprobe/transcript"
)

// Span names for the two paths.
const (
	spanPluginInvoke = "skill.invoke"
	spanDirectChat   = "direct.chat"
)

// PathReport is the outcome of one invocation path.
type PathReport struct {
	// Operation is the path label.
	Operation backend.Label

	// Result is the (possibly partial) streaming accounting record.
	Result stream.Result

	// Err is the failure that ended the path early, nil on success.
	Err error
}

// Completed reports whether the path's fragment sequence ran to exhaustion.
func (p PathReport) Completed() bool { return p.Err == nil && p.Result.Completed }

// Summary is the comparison of the two completed (or partially completed)
// paths. Exactly one Summary exists per run, derived only after both paths
// have finished.
type Summary struct {
	RunID    string
	Question string
	Plugin   PathReport
	Direct   PathReport
}

// TotalChunks is the combined fragment count of both paths.
func (s *Summary) TotalChunks() int { return s.Plugin.Result.Chunks + s.Direct.Result.Chunks }

// TotalLength is the combined response length of both paths.
func (s *Summary) TotalLength() int {
	return len(s.Plugin.Result.Text) + len(s.Direct.Result.Text)
}

// Options holds optional overrides passed to New().
type Options struct {
	// Console receives the live streamed text. Defaults to os.Stdout.
	Console io.Writer

	// Logger receives run diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger

	// Now supplies timestamps for document headers. Defaults to time.Now.
	Now func() time.Time
}

// Coordinator owns one run: it opens the transcript document, drives both
// paths sequentially and writes the final summary. Collaborators are
// injected at construction; the coordinator holds no global state.
type Coordinator struct {
	tok        *tokenizer.Tokenizer
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	backend    backend.Backend
	model      string
	outputPath string
	console    io.Writer
	logger     logging.Logger
	now        func() time.Time
}

// New constructs a Coordinator with optional overrides.
func New(
	tok *tokenizer.Tokenizer,
	metrics *telemetry.Metrics,
	tracer trace.Tracer,
	be backend.Backend,
	model string,
	outputPath string,
	optFns ...func(o *Options),
) *Coordinator {
	opts := Options{
		Console: os.Stdout,
		Logger:  logging.NoOpLogger{},
		Now:     time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coordinator{
		tok:        tok,
		metrics:    metrics,
		tracer:     tracer,
		backend:    be,
		model:      model,
		outputPath: outputPath,
		console:    opts.Console,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// Run executes both paths for one question and returns the summary. The
// returned error is non-nil when the run produced no usable artifact
// (persistence failure) or when at least one path failed; in the latter
// case the Summary is still returned with the failing path marked.
func (c *Coordinator) Run(ctx context.Context, sk *skill.Skill, question, contextText string) (*Summary, error) {
	runID := util.NewID()

	doc, err := transcript.Create(c.outputPath)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	if err := doc.WriteHeader(question, c.model, c.now()); err != nil {
		return nil, err
	}

	c.logger.Info("run started", "run_id", runID, "skill", sk.Name, "output", c.outputPath)

	plugin, fatal := c.runPluginPath(ctx, doc, sk, question, contextText)
	if fatal != nil {
		return nil, fatal
	}

	direct, fatal := c.runPath(ctx, doc, backend.LabelDirect, spanDirectChat, "", question, question, c.model)
	if fatal != nil {
		return nil, fatal
	}

	summary := &Summary{RunID: runID, Question: question, Plugin: plugin, Direct: direct}
	if err := doc.WriteBlock("comparison summary", summaryLines(summary)); err != nil {
		return nil, err
	}
	if err := doc.Close(); err != nil {
		return nil, err
	}

	c.logger.Info("run finished",
		"run_id", runID,
		"plugin_complete", plugin.Completed(),
		"direct_complete", direct.Completed(),
		"total_chunks", summary.TotalChunks())

	if plugin.Err != nil || direct.Err != nil {
		return summary, errors.Join(plugin.Err, direct.Err)
	}
	return summary, nil
}

// runPluginPath resolves the skill template and runs the plugin path. A
// render failure counts as a path failure, not a run failure: the direct
// path still gets its attempt.
func (c *Coordinator) runPluginPath(ctx context.Context, doc *transcript.Document, sk *skill.Skill, question, contextText string) (PathReport, error) {
	model := c.model
	if sk.Model != "" {
		model = sk.Model
	}

	prompt, err := sk.Render(question, contextText)
	if err != nil {
		c.logger.Error("skill render failed", "operation", backend.LabelPlugin, "skill", sk.Name, "error", err)
		return PathReport{Operation: backend.LabelPlugin, Err: err}, nil
	}

	return c.runPath(ctx, doc, backend.LabelPlugin, spanPluginInvoke, sk.System, prompt, question, model)
}

// runPath drives one invocation path end to end. The second return value is
// non-nil only for persistence failures, which are fatal to the whole run;
// backend failures are folded into the PathReport instead.
func (c *Coordinator) runPath(
	ctx context.Context,
	doc *transcript.Document,
	label backend.Label,
	spanName string,
	system, prompt, question, model string,
) (PathReport, error) {
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String(telemetry.AttrOperation, string(label)),
		attribute.String(telemetry.AttrModel, model),
		attribute.Int("question.length", len(question)),
	))
	defer span.End()

	inputTokens := c.tok.Count(prompt)
	c.metrics.AddInputTokens(ctx, inputTokens, string(label), model)

	section, err := doc.NewSection(string(label), question, c.now())
	if err != nil {
		return PathReport{Operation: label}, fmt.Errorf("open section for %s: %w", label, err)
	}

	frags, errs := c.backend.Invoke(ctx, backend.Request{
		Operation: label,
		System:    system,
		Prompt:    prompt,
		Params:    backend.Params{Model: model},
	})

	agg := stream.New(stream.Config{
		Tokenizer:   c.tok,
		Metrics:     c.metrics,
		Console:     c.console,
		Section:     section,
		Logger:      c.logger,
		Operation:   label,
		Model:       model,
		InputTokens: inputTokens,
	})
	res, consumeErr := agg.Consume(ctx, frags, errs)

	if err := section.Close(); err != nil {
		return PathReport{Operation: label, Result: res, Err: consumeErr}, err
	}

	span.SetAttributes(
		attribute.Int("chunks", res.Chunks),
		attribute.Int("response.length", len(res.Text)),
		attribute.Int("tokens.input", res.InputTokens),
		attribute.Int("tokens.completion", res.CompletionTokens),
		attribute.Int64("duration_ms", res.Elapsed.Milliseconds()),
	)

	if consumeErr != nil {
		if errors.Is(consumeErr, transcript.ErrPersistence) {
			return PathReport{Operation: label, Result: res, Err: consumeErr}, consumeErr
		}
		return PathReport{Operation: label, Result: res, Err: consumeErr}, nil
	}

	span.SetStatus(codes.Ok, "")
	return PathReport{Operation: label, Result: res}, nil
}

// summaryLines renders the comparison block appended to the document.
func summaryLines(s *Summary) []string {
	return []string{
		fmt.Sprintf("run: %s", s.RunID),
		pathLine(s.Plugin),
		pathLine(s.Direct),
		fmt.Sprintf("combined: chunks=%d length=%d", s.TotalChunks(), s.TotalLength()),
	}
}

// pathLine renders one path's totals, marking incomplete paths.
func pathLine(p PathReport) string {
	status := "complete"
	if !p.Completed() {
		status = "incomplete"
	}
	line := fmt.Sprintf("%s: chunks=%d length=%d input_tokens=%d completion_tokens=%d total_tokens=%d duration_ms=%d status=%s",
		p.Operation,
		p.Result.Chunks,
		len(p.Result.Text),
		p.Result.InputTokens,
		p.Result.CompletionTokens,
		p.Result.TotalTokens(),
		p.Result.Elapsed.Milliseconds(),
		status,
	)
	if p.Err != nil {
		line += fmt.Sprintf(" error=%q", p.Err.Error())
	}
	return line
}
