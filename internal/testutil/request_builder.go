package testutil

import (
	"github.com/faizanahemad/science-reader-sub002/core"
)

// TurnRequestBuilder provides a fluent helper for constructing turn requests
// in tests. Example:
//
//	req := NewTurnRequest("what is raft?").WebSearch().Detail(2).Build()
//
// Chain only the parts you need; persistence defaults to on.
type TurnRequestBuilder struct {
	req core.TurnRequest
}

// NewTurnRequest creates a builder for the given user text.
func NewTurnRequest(text string) *TurnRequestBuilder {
	b := &TurnRequestBuilder{}
	b.req.Text = text
	b.req.Flags.Persist = true
	return b
}

// WebSearch enables the web search producer (chainable).
func (b *TurnRequestBuilder) WebSearch() *TurnRequestBuilder {
	b.req.Flags.WebSearch = true
	return b
}

// Scholarly switches search to scholarly indexes (chainable).
func (b *TurnRequestBuilder) Scholarly() *TurnRequestBuilder {
	b.req.Flags.Scholarly = true
	return b
}

// CodeExecution enables code fence execution (chainable).
func (b *TurnRequestBuilder) CodeExecution() *TurnRequestBuilder {
	b.req.Flags.CodeExecution = true
	return b
}

// Diagrams enables diagram fence rendering (chainable).
func (b *TurnRequestBuilder) Diagrams() *TurnRequestBuilder {
	b.req.Flags.Diagrams = true
	return b
}

// TellMeMore marks the request as a continuation (chainable).
func (b *TurnRequestBuilder) TellMeMore() *TurnRequestBuilder {
	b.req.Flags.TellMeMore = true
	return b
}

// Detail sets the detail level dial (chainable).
func (b *TurnRequestBuilder) Detail(level int) *TurnRequestBuilder {
	b.req.Flags.DetailLevel = core.DetailLevel(level)
	return b
}

// NoPersist turns recording off for this request (chainable).
func (b *TurnRequestBuilder) NoPersist() *TurnRequestBuilder {
	b.req.Flags.Persist = false
	return b
}

// Links attaches explicit links (chainable).
func (b *TurnRequestBuilder) Links(urls ...string) *TurnRequestBuilder {
	b.req.Links = append(b.req.Links, urls...)
	return b
}

// Queries attaches explicit search queries (chainable).
func (b *TurnRequestBuilder) Queries(qs ...string) *TurnRequestBuilder {
	b.req.SearchQueries = append(b.req.SearchQueries, qs...)
	return b
}

// InsertAfter makes the request a close-to-source insertion (chainable).
func (b *TurnRequestBuilder) InsertAfter(messageID string) *TurnRequestBuilder {
	b.req.InsertAfterMessageID = messageID
	return b
}

// Build returns the assembled request.
func (b *TurnRequestBuilder) Build() core.TurnRequest { return b.req }
