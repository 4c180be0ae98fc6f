package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanFindsCompletedFence(t *testing.T) {
	s := NewFenceScanner()
	fences := s.Scan("intro\n```python\nprint(1)\n```\noutro")
	require.Len(t, fences, 1)
	assert.Equal(t, "python", fences[0].Lang)
	assert.Equal(t, "print(1)", fences[0].Body)
}

func TestScanIgnoresUnterminatedFence(t *testing.T) {
	s := NewFenceScanner()
	assert.Empty(t, s.Scan("text\n```python\nprint(1)\n"))

	// The same block completes on a later scan of the grown buffer.
	fences := s.Scan("text\n```python\nprint(1)\n```\n")
	require.Len(t, fences, 1)
	assert.Equal(t, "print(1)", fences[0].Body)
}

func TestScanReportsEachBlockOnce(t *testing.T) {
	s := NewFenceScanner()
	buf := "```python\nprint(1)\n```\n"
	require.Len(t, s.Scan(buf), 1)

	// Rescanning the grown buffer never re-fires the seen block.
	buf += "more prose\n"
	assert.Empty(t, s.Scan(buf))

	buf += "```python\nprint(2)\n```\n"
	fences := s.Scan(buf)
	require.Len(t, fences, 1)
	assert.Equal(t, "print(2)", fences[0].Body)
}

func TestScanIdenticalBlocksDeduplicated(t *testing.T) {
	s := NewFenceScanner()
	buf := "```sh\nls\n```\nand again\n```sh\nls\n```\n"
	assert.Len(t, s.Scan(buf), 1)
}

func TestScanEmptyLangAndMultiline(t *testing.T) {
	s := NewFenceScanner()
	fences := s.Scan("```\nline one\nline two\n```\n")
	require.Len(t, fences, 1)
	assert.Equal(t, "", fences[0].Lang)
	assert.Equal(t, "line one\nline two", fences[0].Body)
}

func TestScanSeparateScannersIndependent(t *testing.T) {
	buf := "```go\ncode\n```\n"
	a := NewFenceScanner()
	b := NewFenceScanner()
	assert.Len(t, a.Scan(buf), 1)
	assert.Len(t, b.Scan(buf), 1)
}
