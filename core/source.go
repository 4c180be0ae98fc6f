package core

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SourceKind enumerates the closed set of information source classes. The
// engine maps kinds to constructors at compile time; unknown kinds are
// rejected at the boundary rather than silently ignored.
type SourceKind string

const (
	// KindWebSearch fetches and extracts web search results.
	KindWebSearch SourceKind = "web_search"
	// KindDocument reads one attached document.
	KindDocument SourceKind = "document"
	// KindLink reads one explicitly supplied link.
	KindLink SourceKind = "link"
	// KindContinuation pulls forward the prior turn's gathered context.
	KindContinuation SourceKind = "continuation"
)

// Valid reports whether k is a member of the closed kind set.
func (k SourceKind) Valid() bool {
	switch k {
	case KindWebSearch, KindDocument, KindLink, KindContinuation:
		return true
	}
	return false
}

// SourceResult is the output of one producer run.
type SourceResult struct {
	Kind     SourceKind
	Content  string
	Metadata map[string]any
}

// SourceProducer is one asynchronous information source consulted during a
// turn. Implementations must be safely invocable from a worker pool and
// should respect ctx, but the engine enforces the budget by polling rather
// than trusting producers to self-terminate.
type SourceProducer interface {
	// Kind returns the producer's source class.
	Kind() SourceKind
	// Run gathers content for the query within the given budget.
	Run(ctx context.Context, query string, budget time.Duration) (SourceResult, error)
}

// UnknownKindError reports a source kind outside the closed registry.
type UnknownKindError struct {
	Kind SourceKind
}

// Error implements the error interface.
func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown source kind %q", e.Kind)
}

// RankResults orders results by content length descending and drops entries
// shorter than minLen. The input slice is not mutated.
func RankResults(results []SourceResult, minLen int) []SourceResult {
	ranked := make([]SourceResult, 0, len(results))
	for _, r := range results {
		if len(r.Content) >= minLen {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(ranked[i].Content) > len(ranked[j].Content)
	})
	return ranked
}
