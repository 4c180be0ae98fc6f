package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/faizanahemad/science-reader-sub002/core"
)

// minResultLen filters out near-empty search hits before ranking.
const minResultLen = 80

// Compile-time producer contract assertions.
var (
	_ core.SourceProducer = (*WebSearch)(nil)
	_ core.SourceProducer = (*Document)(nil)
	_ core.SourceProducer = (*Link)(nil)
	_ core.SourceProducer = (*Continuation)(nil)
)

// WebSearch consults a search client and merges the ranked hits.
type WebSearch struct {
	client    SearchClient
	query     string
	scholarly bool
}

// NewWebSearch constructs a web search producer for one query.
func NewWebSearch(client SearchClient, query string, scholarly bool) *WebSearch {
	return &WebSearch{client: client, query: query, scholarly: scholarly}
}

// Kind implements core.SourceProducer.
func (w *WebSearch) Kind() core.SourceKind { return core.KindWebSearch }

// Run implements core.SourceProducer. Hits are sorted by content length
// descending and filtered by a minimum length threshold before merging.
func (w *WebSearch) Run(ctx context.Context, query string, budget time.Duration) (core.SourceResult, error) {
	q := w.query
	if q == "" {
		q = query
	}
	hits, err := w.client.Search(ctx, q, w.scholarly)
	if err != nil {
		return core.SourceResult{}, fmt.Errorf("web search %q failed: %w", q, err)
	}

	results := make([]core.SourceResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, core.SourceResult{
			Kind:     core.KindWebSearch,
			Content:  h.Content,
			Metadata: map[string]any{"title": h.Title, "url": h.URL},
		})
	}
	ranked := core.RankResults(results, minResultLen)

	var b strings.Builder
	urls := make([]any, 0, len(ranked))
	for _, r := range ranked {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%v](%v)\n%s", r.Metadata["title"], r.Metadata["url"], r.Content)
		urls = append(urls, r.Metadata["url"])
	}
	return core.SourceResult{
		Kind:     core.KindWebSearch,
		Content:  b.String(),
		Metadata: map[string]any{"query": q, "urls": urls},
	}, nil
}

// Document reads one attached document.
type Document struct {
	reader DocReader
	doc    core.UploadedDoc
}

// NewDocument constructs a producer reading the given uploaded document.
func NewDocument(reader DocReader, doc core.UploadedDoc) *Document {
	return &Document{reader: reader, doc: doc}
}

// Kind implements core.SourceProducer.
func (d *Document) Kind() core.SourceKind { return core.KindDocument }

// Run implements core.SourceProducer.
func (d *Document) Run(ctx context.Context, _ string, budget time.Duration) (core.SourceResult, error) {
	text, err := d.reader.ReadDoc(ctx, d.doc.StoragePath)
	if err != nil {
		return core.SourceResult{}, fmt.Errorf("document %s read failed: %w", d.doc.DocID, err)
	}
	return core.SourceResult{
		Kind:     core.KindDocument,
		Content:  text,
		Metadata: map[string]any{"doc_id": d.doc.DocID, "source_url": d.doc.SourceURL},
	}, nil
}

// Link fetches one explicitly supplied URL.
type Link struct {
	fetcher LinkFetcher
	url     string
}

// NewLink constructs a producer fetching the given URL.
func NewLink(fetcher LinkFetcher, url string) *Link {
	return &Link{fetcher: fetcher, url: url}
}

// Kind implements core.SourceProducer.
func (l *Link) Kind() core.SourceKind { return core.KindLink }

// Run implements core.SourceProducer.
func (l *Link) Run(ctx context.Context, _ string, budget time.Duration) (core.SourceResult, error) {
	text, err := l.fetcher.Fetch(ctx, l.url)
	if err != nil {
		return core.SourceResult{}, fmt.Errorf("link %s fetch failed: %w", l.url, err)
	}
	return core.SourceResult{
		Kind:     core.KindLink,
		Content:  text,
		Metadata: map[string]any{"url": l.url},
	}, nil
}

// Continuation carries forward context gathered for the prior turn,
// supporting "tell me more" follow ups without refetching.
type Continuation struct {
	priorContext string
}

// NewContinuation wraps the prior turn's gathered context.
func NewContinuation(priorContext string) *Continuation {
	return &Continuation{priorContext: priorContext}
}

// Kind implements core.SourceProducer.
func (c *Continuation) Kind() core.SourceKind { return core.KindContinuation }

// Run implements core.SourceProducer.
func (c *Continuation) Run(ctx context.Context, _ string, _ time.Duration) (core.SourceResult, error) {
	return core.SourceResult{
		Kind:    core.KindContinuation,
		Content: c.priorContext,
	}, nil
}
