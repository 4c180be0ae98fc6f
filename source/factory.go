package source

import (
	"github.com/faizanahemad/science-reader-sub002/core"
)

// Factory builds producers for a turn from the closed kind set. Construction
// is a compile-time switch over core.SourceKind; an unknown kind is rejected
// at the boundary rather than silently producing nothing.
type Factory struct {
	Search SearchClient
	Docs   DocReader
	Links  LinkFetcher
}

// Spec names one producer to build.
type Spec struct {
	Kind core.SourceKind

	// Query is the search query for web search producers.
	Query string
	// Scholarly switches web search to scholarly indexes.
	Scholarly bool
	// Doc is the document for document producers.
	Doc core.UploadedDoc
	// URL is the target for link producers.
	URL string
	// PriorContext is the carried context for continuation producers.
	PriorContext string
}

// New constructs the producer for spec, or an UnknownKindError.
func (f Factory) New(spec Spec) (core.SourceProducer, error) {
	switch spec.Kind {
	case core.KindWebSearch:
		return NewWebSearch(f.Search, spec.Query, spec.Scholarly), nil
	case core.KindDocument:
		return NewDocument(f.Docs, spec.Doc), nil
	case core.KindLink:
		return NewLink(f.Links, spec.URL), nil
	case core.KindContinuation:
		return NewContinuation(spec.PriorContext), nil
	}
	return nil, &core.UnknownKindError{Kind: spec.Kind}
}

// ForRequest expands a turn request into the producer set it activates: one
// web search per explicit query (or one for the free text when search is on
// without queries), one reader per attached document and link, and a
// continuation producer when prior context is carried forward.
func (f Factory) ForRequest(req core.TurnRequest, docs []core.UploadedDoc, priorContext string) ([]core.SourceProducer, error) {
	var specs []Spec

	if req.Flags.WebSearch && f.Search != nil {
		if len(req.SearchQueries) == 0 {
			specs = append(specs, Spec{Kind: core.KindWebSearch, Query: req.Text, Scholarly: req.Flags.Scholarly})
		}
		for _, q := range req.SearchQueries {
			specs = append(specs, Spec{Kind: core.KindWebSearch, Query: q, Scholarly: req.Flags.Scholarly})
		}
	}
	if f.Docs != nil {
		for _, d := range docs {
			specs = append(specs, Spec{Kind: core.KindDocument, Doc: d})
		}
	}
	if f.Links != nil {
		for _, u := range req.Links {
			specs = append(specs, Spec{Kind: core.KindLink, URL: u})
		}
	}
	if req.Flags.TellMeMore && priorContext != "" {
		specs = append(specs, Spec{Kind: core.KindContinuation, PriorContext: priorContext})
	}

	producers := make([]core.SourceProducer, 0, len(specs))
	for _, s := range specs {
		p, err := f.New(s)
		if err != nil {
			return nil, err
		}
		producers = append(producers, p)
	}
	return producers, nil
}
