// Package openai provides a backend.Generator implementation using the
// OpenAI Chat Completions API (including streaming). It adapts the engine's
// normalized Request/Response structures into the SDK's message format and
// back.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/faizanahemad/science-reader-sub002/backend"
)

// Options configure the OpenAI generator adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	MaxCompletionTokens int64
}

// Generator wraps the OpenAI Chat Completions API behind the generic
// backend.Generator interface.
type Generator struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI generator using the official client
func New(optFns ...func(o *Options)) *Generator {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI generator from an existing client
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Generator {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		MaxCompletionTokens: 4096,
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
		params := g.buildParams(req)
		if req.Stream {
			g.handleStreaming(ctx, params, out, errCh)
			return
		}
		g.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildParams assembles the OpenAI request parameters including any image
// attachments.
func (g *Generator) buildParams(req backend.Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	if len(req.Images) > 0 {
		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Images)+1)
		parts = append(parts, openai.TextContentPart(req.Prompt))
		for _, img := range req.Images {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: img}))
		}
		messages = append(messages, openai.UserMessage(parts))
	} else {
		messages = append(messages, openai.UserMessage(req.Prompt))
	}
	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               g.opts.Model,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(g.opts.MaxCompletionTokens),
	}
}

// handleStreaming processes streaming responses and forwards partial / final chunks.
func (g *Generator) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- backend.Response,
	errCh chan<- error,
) {
	stream := g.client.Chat.Completions.NewStreaming(ctx, params)
	finishReason := "stop"
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				select {
				case <-ctx.Done():
					errCh <- &backend.GenerationError{Provider: "openai", Err: ctx.Err()}
					return
				case out <- backend.Response{Text: ch.Delta.Content, Partial: true}:
				}
			}
			if ch.FinishReason != "" {
				finishReason = ch.FinishReason
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- &backend.GenerationError{Provider: "openai", Err: err}
		return
	}
	out <- backend.Response{Partial: false, FinishReason: finishReason}
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (g *Generator) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- backend.Response,
	errCh chan<- error,
) {
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- &backend.GenerationError{Provider: "openai", Err: err}
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- &backend.GenerationError{Provider: "openai", Err: fmt.Errorf("no choices returned")}
		return
	}
	ch0 := resp.Choices[0]
	out <- backend.Response{Text: ch0.Message.Content, Partial: false, FinishReason: ch0.FinishReason}
}

// Info returns metadata describing this OpenAI generator implementation.
func (g *Generator) Info() backend.Info {
	return backend.Info{Name: g.opts.Model, Provider: "openai"}
}
