// Package anthropic provides a backend.Generator wrapper for the Anthropic
// Claude Messages API.
package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/faizanahemad/science-reader-sub002/backend"
)

// Options configures the Anthropic generator adapter (model id, max tokens,
// API key). Extend via functional options to preserve stability.
type Options struct {
	Model     anthropic.Model
	MaxTokens int64
	APIKey    string
}

// Generator wraps the Anthropic Messages API behind the generic
// backend.Generator interface.
type Generator struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic generator using the official client
func New(optFns ...func(o *Options)) *Generator {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Generator{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic generator from an existing client
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Generator {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (g *Generator) Generate(ctx context.Context, req backend.Request) (<-chan backend.Response, <-chan error) {
	out := make(chan backend.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:     g.opts.Model,
			MaxTokens: g.opts.MaxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
			},
			Temperature: anthropic.Float(req.Temperature),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}

		if req.Stream {
			g.handleStreaming(ctx, params, out, errCh)
			return
		}

		resp, err := g.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- &backend.GenerationError{Provider: "anthropic", Err: err}
			return
		}
		var text string
		for _, block := range resp.Content {
			if block.Type == "text" {
				text += block.AsText().Text
			}
		}
		finishReason := "stop"
		if resp.StopReason != "" {
			finishReason = string(resp.StopReason)
		}
		out <- backend.Response{Text: text, Partial: false, FinishReason: finishReason}
	}()

	return out, errCh
}

// handleStreaming adapts the Messages streaming events into Response chunks.
func (g *Generator) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- backend.Response,
	errCh chan<- error,
) {
	stream := g.client.Messages.NewStreaming(ctx, params)
	finishReason := "stop"
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if ev.Delta.Text != "" {
				select {
				case <-ctx.Done():
					errCh <- &backend.GenerationError{Provider: "anthropic", Err: ctx.Err()}
					return
				case out <- backend.Response{Text: ev.Delta.Text, Partial: true}:
				}
			}
		case anthropic.MessageDeltaEvent:
			if ev.Delta.StopReason != "" {
				finishReason = string(ev.Delta.StopReason)
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- &backend.GenerationError{Provider: "anthropic", Err: err}
		return
	}
	out <- backend.Response{Partial: false, FinishReason: finishReason}
}

// Info returns metadata describing this Anthropic generator implementation.
func (g *Generator) Info() backend.Info {
	return backend.Info{Name: string(g.opts.Model), Provider: "anthropic"}
}
