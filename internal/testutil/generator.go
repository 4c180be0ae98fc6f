package testutil

import (
	"context"
	"time"

	"github.com/faizanahemad/science-reader-sub002/backend"
)

// ScriptedGenerator emits a fixed chunk sequence with an optional per-chunk
// delay, giving cancellation tests a window to interleave. Err, when set,
// aborts generation after the chunks already emitted.
type ScriptedGenerator struct {
	Chunks     []string
	ChunkDelay time.Duration
	Err        error
	FailAfter  int // chunks emitted before Err fires; 0 means immediately
}

// Generate implements backend.Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, req backend.Request) (<-chan backend.Response, <-chan error) {
	respCh := make(chan backend.Response, len(g.Chunks)+1)
	errCh := make(chan error, 1)
	go func() {
		defer close(respCh)
		defer close(errCh)
		full := ""
		for i, chunk := range g.Chunks {
			if g.Err != nil && i >= g.FailAfter {
				errCh <- g.Err
				return
			}
			if g.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case <-time.After(g.ChunkDelay):
				}
			}
			full += chunk
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- backend.Response{Text: chunk, Partial: true}:
			}
		}
		if g.Err != nil && g.FailAfter >= len(g.Chunks) {
			errCh <- g.Err
			return
		}
		respCh <- backend.Response{Text: full, Partial: false, FinishReason: "stop"}
	}()
	return respCh, errCh
}

// Info implements backend.Generator.
func (g *ScriptedGenerator) Info() backend.Info {
	return backend.Info{Name: "scripted", Provider: "mock"}
}
