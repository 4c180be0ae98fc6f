package source

import "context"

// SearchHit is one result returned by a search client.
type SearchHit struct {
	Title   string
	URL     string
	Content string
}

// SearchClient performs web (or scholarly) searches. Implementations wrap a
// concrete provider; they must be safe for concurrent use.
type SearchClient interface {
	Search(ctx context.Context, query string, scholarly bool) ([]SearchHit, error)
}

// DocReader extracts the text of a previously uploaded document.
type DocReader interface {
	ReadDoc(ctx context.Context, storagePath string) (string, error)
}

// LinkFetcher retrieves and extracts the readable text of a URL.
type LinkFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
