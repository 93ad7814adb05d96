// Package openai adapts the OpenAI Chat Completions streaming API to the
// backend.Backend fragment contract. Text deltas are forwarded verbatim as
// fragments; chunking is whatever the API produces.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/skillprobe/backend"
)

// Options configure the OpenAI adapter. Request params override the
// defaults per invocation.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Backend wraps the OpenAI client behind the backend.Backend interface.
type Backend struct {
	client *openai.Client
	opts   Options
}

// NewBackend creates an adapter using the official client (API key taken
// from the environment by the SDK).
func NewBackend(optFns ...func(o *Options)) *Backend {
	client := openai.NewClient()
	return NewBackendFromClient(&client, optFns...)
}

// NewBackendFromClient creates an adapter from an existing client.
func NewBackendFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

// Invoke implements backend.Backend using the streaming completion endpoint.
func (b *Backend) Invoke(ctx context.Context, req backend.Request) (<-chan backend.Fragment, <-chan error) {
	out := make(chan backend.Fragment, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		stream := b.client.Chat.Completions.NewStreaming(ctx, b.buildParams(req))
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- backend.Fragment{Text: ch.Delta.Content}:
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
		}
	}()

	return out, errCh
}

// buildParams assembles the completion parameters for one request.
func (b *Backend) buildParams(req backend.Request) openai.ChatCompletionNewParams {
	model := b.opts.Model
	if req.Params.Model != "" {
		model = req.Params.Model
	}
	temperature := b.opts.Temperature
	if req.Params.Temperature != 0 {
		temperature = req.Params.Temperature
	}
	maxTokens := b.opts.MaxCompletionTokens
	if req.Params.MaxTokens != 0 {
		maxTokens = req.Params.MaxTokens
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
}
