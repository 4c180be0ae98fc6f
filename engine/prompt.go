package engine

import (
	"fmt"
	"strings"

	"github.com/faizanahemad/science-reader-sub002/core"
)

// promptParts holds the context components assembled for one generation
// call, before the window budget is applied.
type promptParts struct {
	memory       string
	history      []core.Message
	documents    []string
	links        []string
	web          []string
	continuation string
	userText     string
}

// shares divides the window among components. The user text is never
// truncated; everything else shrinks toward its share when the total
// overflows. Web content gives way first, then links, then history, then
// documents, then memory: the components closest to the user's explicit
// input are sacrificed last.
var shares = []struct {
	name  string
	share float64
}{
	{"memory", 0.08},
	{"history", 0.22},
	{"documents", 0.28},
	{"links", 0.14},
	{"web", 0.20},
	{"continuation", 0.08},
}

// buildPrompt renders the parts into a single prompt bounded by window
// bytes. Identical inputs always produce the identical prompt; truncation
// is a pure function of lengths, not of timing or order of arrival.
func buildPrompt(window int, parts promptParts) string {
	userLen := len(parts.userText)
	remaining := window - userLen - 512 // section headers and framing
	if remaining < 0 {
		remaining = 0
	}

	caps := make(map[string]int, len(shares))
	for _, s := range shares {
		caps[s.name] = int(float64(remaining) * s.share)
	}

	var b strings.Builder

	if m := truncateHead(parts.memory, caps["memory"]); m != "" {
		b.WriteString("## Conversation summary\n")
		b.WriteString(m)
		b.WriteString("\n\n")
	}

	if h := renderHistory(parts.history, caps["history"]); h != "" {
		b.WriteString("## Recent messages\n")
		b.WriteString(h)
		b.WriteString("\n")
	}

	writeSection(&b, "## Attached documents", parts.documents, caps["documents"])
	writeSection(&b, "## Linked pages", parts.links, caps["links"])
	writeSection(&b, "## Web results", parts.web, caps["web"])

	if c := truncateHead(parts.continuation, caps["continuation"]); c != "" {
		b.WriteString("## Continuing from\n")
		b.WriteString(c)
		b.WriteString("\n\n")
	}

	b.WriteString("## Question\n")
	b.WriteString(parts.userText)

	return b.String()
}

// renderHistory renders messages newest-last and drops the oldest whole
// messages first when the section overflows its cap.
func renderHistory(msgs []core.Message, limit int) string {
	if len(msgs) == 0 || limit <= 0 {
		return ""
	}
	rendered := make([]string, len(msgs))
	total := 0
	for i, m := range msgs {
		rendered[i] = fmt.Sprintf("%s: %s\n", m.Sender, m.Text)
		total += len(rendered[i])
	}
	start := 0
	for start < len(rendered) && total > limit {
		total -= len(rendered[start])
		start++
	}
	if start == len(rendered) {
		// Even the newest message alone overflows; keep its tail.
		return truncateTail(rendered[len(rendered)-1], limit)
	}
	return strings.Join(rendered[start:], "")
}

// writeSection emits the blocks under header, splitting the cap evenly and
// truncating each block's tail. Sources lead with their most relevant
// content, so heads are kept.
func writeSection(b *strings.Builder, header string, blocks []string, limit int) {
	if len(blocks) == 0 || limit <= 0 {
		return
	}
	per := limit / len(blocks)
	wrote := false
	for _, blk := range blocks {
		t := truncateHead(blk, per)
		if t == "" {
			continue
		}
		if !wrote {
			b.WriteString(header)
			b.WriteString("\n")
			wrote = true
		}
		b.WriteString(t)
		b.WriteString("\n\n")
	}
}

// truncateHead keeps the first n bytes, cutting back to a rune boundary.
func truncateHead(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// truncateTail keeps the last n bytes, cutting forward to a rune boundary.
func truncateTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !isRuneStart(s[i]) {
		i++
	}
	return s[i:]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
