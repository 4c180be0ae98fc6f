package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faizanahemad/science-reader-sub002/source"
)

// StubSearch is a canned SearchClient. Set Err to simulate failure or Delay
// to simulate a slow index. Queries are recorded for assertion.
type StubSearch struct {
	Hits  []source.SearchHit
	Err   error
	Delay time.Duration

	mu      sync.Mutex
	queries []string
}

// Search implements source.SearchClient.
func (s *StubSearch) Search(ctx context.Context, query string, scholarly bool) ([]source.SearchHit, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Hits, nil
}

// LastQuery returns the most recent query, or "" if none was made.
func (s *StubSearch) LastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return ""
	}
	return s.queries[len(s.queries)-1]
}

// StubDocs is a canned DocReader mapping storage paths to extracted text.
type StubDocs struct {
	Texts map[string]string
	Err   error
}

// ReadDoc implements source.DocReader.
func (s *StubDocs) ReadDoc(ctx context.Context, storagePath string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	text, ok := s.Texts[storagePath]
	if !ok {
		return "", fmt.Errorf("no such document %q", storagePath)
	}
	return text, nil
}

// StubLinks is a canned LinkFetcher mapping urls to extracted text.
type StubLinks struct {
	Pages map[string]string
	Err   error
	Delay time.Duration
}

// Fetch implements source.LinkFetcher.
func (s *StubLinks) Fetch(ctx context.Context, url string) (string, error) {
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	if s.Err != nil {
		return "", s.Err
	}
	page, ok := s.Pages[url]
	if !ok {
		return "", fmt.Errorf("no such page %q", url)
	}
	return page, nil
}
