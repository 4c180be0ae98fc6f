// Package backend defines the generation backend contract consumed by the
// turn engine, plus a deterministic mock for tests. Adapters for concrete
// providers live in the backend/openai and backend/anthropic subpackages.
package backend

import (
	"context"
	"fmt"
	"strings"
)

// Request captures the normalized generation input produced by the engine's
// prompt ladder.
type Request struct {
	Prompt      string   `json:"prompt"`
	System      string   `json:"system,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
	Images      []string `json:"images,omitempty"` // data URIs or external URLs
}

// Response is a (partial or final) chunk emitted by a streaming generator.
type Response struct {
	Text         string `json:"text"`
	Partial      bool   `json:"partial"`
	FinishReason string `json:"finish_reason,omitempty"` // "stop", "length", etc.
}

// Info contains metadata about a generator implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Generator is the minimal interface required to drive generation. Both
// buffered and incremental modes are supported via Request.Stream; errors on
// the error channel are fatal to the turn.
type Generator interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the generator implementation.
	Info() Info
}

// GenerationError wraps a provider failure. Unlike source errors it
// propagates to the turn boundary.
type GenerationError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

// Unwrap returns the provider error.
func (e *GenerationError) Unwrap() error { return e.Err }

// Mock is a lightweight in-memory Generator useful for tests & examples.
type Mock struct {
	info      Info
	responses map[string]string
}

// NewMock constructs a Mock generator.
func NewMock(name string) *Mock {
	return &Mock{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for prompts
// containing the given substring.
func (m *Mock) AddResponse(promptContains, response string) {
	m.responses[promptContains] = response
}

// Generate implements Generator; emits optional streaming word chunks then a
// final response.
func (m *Mock) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		full := ""
		for needle, canned := range m.responses {
			if strings.Contains(req.Prompt, needle) {
				full = canned
				break
			}
		}
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", req.Prompt)
		}
		if req.Stream {
			for _, word := range strings.SplitAfter(full, " ") {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Text: word, Partial: true}:
				}
			}
		}
		respCh <- Response{Text: full, Partial: false, FinishReason: "stop"}
	}()
	return respCh, errCh
}

// Info implements Generator.
func (m *Mock) Info() Info { return m.info }
