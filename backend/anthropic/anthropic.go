// Package anthropic adapts the Anthropic Messages streaming API to the
// backend.Backend fragment contract. Only text deltas are forwarded; other
// stream events carry no answer content and are skipped.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/skillprobe/backend"
)

// Options configure the Anthropic adapter. Request params override the
// defaults per invocation.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// ModelName converts a plain model identifier into the SDK's model type, so
// callers configuring by string need not import the SDK.
func ModelName(name string) anthropic.Model { return anthropic.Model(name) }

// Backend wraps the Anthropic client behind the backend.Backend interface.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// NewBackend creates an adapter using the official client.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewBackendFromClient creates an adapter from an existing client.
func NewBackendFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

// Invoke implements backend.Backend using the streaming messages endpoint.
func (b *Backend) Invoke(ctx context.Context, req backend.Request) (<-chan backend.Fragment, <-chan error) {
	out := make(chan backend.Fragment, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		stream := b.client.Messages.NewStreaming(ctx, b.buildParams(req))
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text == "" {
						continue
					}
					select {
					case <-ctx.Done():
						errCh <- ctx.Err()
						return
					case out <- backend.Fragment{Text: delta.Text}:
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		}
	}()

	return out, errCh
}

// buildParams assembles the message parameters for one request.
func (b *Backend) buildParams(req backend.Request) anthropic.MessageNewParams {
	model := b.opts.Model
	if req.Params.Model != "" {
		model = anthropic.Model(req.Params.Model)
	}
	temperature := b.opts.Temperature
	if req.Params.Temperature != 0 {
		temperature = req.Params.Temperature
	}
	maxTokens := b.opts.MaxTokens
	if req.Params.MaxTokens != 0 {
		maxTokens = req.Params.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       model,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}
