package source

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faizanahemad/science-reader-sub002/core"
)

type fakeSearch struct {
	hits      []SearchHit
	err       error
	lastQuery string
	scholarly bool
}

func (f *fakeSearch) Search(_ context.Context, query string, scholarly bool) ([]SearchHit, error) {
	f.lastQuery = query
	f.scholarly = scholarly
	return f.hits, f.err
}

type fakeDocs struct{ text string }

func (f *fakeDocs) ReadDoc(context.Context, string) (string, error) { return f.text, nil }

type fakeLinks struct{ err error }

func (f *fakeLinks) Fetch(_ context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "page body of " + url, nil
}

func TestWebSearchRanksAndMerges(t *testing.T) {
	long := strings.Repeat("long content ", 20)
	longer := strings.Repeat("even longer content ", 20)
	client := &fakeSearch{hits: []SearchHit{
		{Title: "Tiny", URL: "http://t", Content: "too short"},
		{Title: "Long", URL: "http://l", Content: long},
		{Title: "Longer", URL: "http://ll", Content: longer},
	}}

	p := NewWebSearch(client, "raft consensus", true)
	res, err := p.Run(context.Background(), "", 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, core.KindWebSearch, res.Kind)
	assert.True(t, client.scholarly)
	assert.Equal(t, "raft consensus", client.lastQuery)
	assert.NotContains(t, res.Content, "too short")
	// Longest hit leads the merged block.
	assert.True(t, strings.Index(res.Content, "Longer") < strings.Index(res.Content, "[Long]"))
	urls := res.Metadata["urls"].([]any)
	assert.Len(t, urls, 2)
}

func TestWebSearchFallsBackToTurnQuery(t *testing.T) {
	client := &fakeSearch{}
	p := NewWebSearch(client, "", false)
	_, err := p.Run(context.Background(), "turn text", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "turn text", client.lastQuery)
}

func TestWebSearchPropagatesClientError(t *testing.T) {
	client := &fakeSearch{err: errors.New("dns down")}
	p := NewWebSearch(client, "q", false)
	_, err := p.Run(context.Background(), "", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dns down")
}

func TestDocumentProducer(t *testing.T) {
	p := NewDocument(&fakeDocs{text: "chapter one"}, core.UploadedDoc{DocID: "d1", StoragePath: "/x"})
	res, err := p.Run(context.Background(), "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.KindDocument, res.Kind)
	assert.Equal(t, "chapter one", res.Content)
	assert.Equal(t, "d1", res.Metadata["doc_id"])
}

func TestLinkProducerError(t *testing.T) {
	p := NewLink(&fakeLinks{err: errors.New("404")}, "http://gone")
	_, err := p.Run(context.Background(), "", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http://gone")
}

func TestContinuationEchoesPriorContext(t *testing.T) {
	p := NewContinuation("previous context")
	res, err := p.Run(context.Background(), "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.KindContinuation, res.Kind)
	assert.Equal(t, "previous context", res.Content)
}

func TestFactoryRejectsUnknownKind(t *testing.T) {
	f := Factory{}
	_, err := f.New(Spec{Kind: core.SourceKind("smoke_signal")})
	var uke *core.UnknownKindError
	require.ErrorAs(t, err, &uke)
}

func TestFactoryForRequestExpansion(t *testing.T) {
	f := Factory{Search: &fakeSearch{}, Docs: &fakeDocs{}, Links: &fakeLinks{}}
	req := core.TurnRequest{
		Text:          "question",
		Links:         []string{"http://a", "http://b"},
		SearchQueries: []string{"q1", "q2"},
		Flags:         core.TurnFlags{WebSearch: true, TellMeMore: true},
	}
	docs := []core.UploadedDoc{{DocID: "d1"}, {DocID: "d2"}}

	producers, err := f.ForRequest(req, docs, "prior")
	require.NoError(t, err)
	// 2 searches + 2 docs + 2 links + 1 continuation
	require.Len(t, producers, 7)

	counts := map[core.SourceKind]int{}
	for _, p := range producers {
		counts[p.Kind()]++
	}
	assert.Equal(t, 2, counts[core.KindWebSearch])
	assert.Equal(t, 2, counts[core.KindDocument])
	assert.Equal(t, 2, counts[core.KindLink])
	assert.Equal(t, 1, counts[core.KindContinuation])
}

func TestFactoryForRequestFreeTextSearch(t *testing.T) {
	f := Factory{Search: &fakeSearch{}}
	req := core.TurnRequest{Text: "question", Flags: core.TurnFlags{WebSearch: true}}
	producers, err := f.ForRequest(req, nil, "")
	require.NoError(t, err)
	require.Len(t, producers, 1)
	assert.Equal(t, core.KindWebSearch, producers[0].Kind())
}

func TestFactoryNilClientsDeactivateClasses(t *testing.T) {
	f := Factory{} // no clients at all
	req := core.TurnRequest{
		Text:  "question",
		Links: []string{"http://a"},
		Flags: core.TurnFlags{WebSearch: true},
	}
	producers, err := f.ForRequest(req, []core.UploadedDoc{{DocID: "d"}}, "")
	require.NoError(t, err)
	assert.Empty(t, producers)
}
