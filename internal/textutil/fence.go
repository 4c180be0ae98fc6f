// Package textutil provides text scanning helpers shared by the engine and
// its tests.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// Fence is one completed fenced block extracted from streamed output.
type Fence struct {
	Lang string
	Body string
}

// fenceRe matches complete triple-backtick blocks only; an unterminated
// fence at the end of a growing buffer is left for a later scan.
var fenceRe = regexp.MustCompile("(?ms)^```([A-Za-z0-9_+-]*)[ \t]*\n(.*?)\n?^```[ \t]*$")

// FenceScanner incrementally detects completed fenced blocks in an
// accumulating output buffer. Each unique block is reported exactly once:
// rescanning the grown buffer never re-fires a block already seen.
type FenceScanner struct {
	seen map[string]struct{}
}

// NewFenceScanner returns an empty scanner.
func NewFenceScanner() *FenceScanner {
	return &FenceScanner{seen: make(map[string]struct{})}
}

// Scan returns the fences completed in buf that have not been reported by a
// previous call.
func (s *FenceScanner) Scan(buf string) []Fence {
	var fresh []Fence
	for _, m := range fenceRe.FindAllStringSubmatch(buf, -1) {
		f := Fence{Lang: m[1], Body: m[2]}
		key := fingerprint(f)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		fresh = append(fresh, f)
	}
	return fresh
}

func fingerprint(f Fence) string {
	h := sha256.New()
	h.Write([]byte(f.Lang))
	h.Write([]byte{0})
	h.Write([]byte(f.Body))
	return hex.EncodeToString(h.Sum(nil))
}
