// Package source implements the asynchronous information sources consulted
// during a turn (web search, document reader, link reader, prior-turn
// continuation) plus the closed factory mapping source kinds to
// constructors. Provider protocols (the actual search API, document text
// extraction, HTTP fetching) stay behind small client interfaces so the
// engine depends only on the producer contract.
package source
