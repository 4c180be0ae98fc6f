// Package persist records completed turns off the engine's critical path.
// The write sequence keeps two invariants: the message list stays an
// alternating user/model pairing of even length, and the running summary
// holds exactly one entry per pair, at the pair's index. Enrichment (title,
// next-question suggestions) runs after the core write and never blocks or
// fails the turn.
package persist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/faizanahemad/science-reader-sub002/backend"
	"github.com/faizanahemad/science-reader-sub002/conversation"
	"github.com/faizanahemad/science-reader-sub002/core"
	"github.com/faizanahemad/science-reader-sub002/logging"
)

// DefaultEnrichTimeout bounds the asynchronous enrichment pass.
const DefaultEnrichTimeout = 10 * time.Second

// fallbackSuggestions is used when no enrichment model is configured or the
// pass fails.
var fallbackSuggestions = []string{
	"Can you elaborate on that?",
	"What are the main caveats?",
	"Summarize the key points so far.",
}

// Options configure the persister.
type Options struct {
	// EnrichTimeout bounds the enrichment pass (DefaultEnrichTimeout if zero).
	EnrichTimeout time.Duration
	// Logger receives persistence diagnostics.
	Logger logging.Logger
}

// Persister writes completed turns into conversation records. Safe for
// concurrent use; per-conversation ordering comes from the field locks.
type Persister struct {
	enrich        backend.Generator
	enrichTimeout time.Duration
	logger        logging.Logger
}

// New constructs a Persister. enrich may be nil, in which case titles and
// suggestions fall back to deterministic local derivations.
func New(enrich backend.Generator, optFns ...func(o *Options)) *Persister {
	opts := Options{
		EnrichTimeout: DefaultEnrichTimeout,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Persister{
		enrich:        enrich,
		enrichTimeout: opts.EnrichTimeout,
		logger:        opts.Logger,
	}
}

// Turn is one completed exchange handed over by the engine.
type Turn struct {
	Request   Request
	Answer    string
	Cancelled bool
	// Config snapshots the options that produced the answer; attached to
	// both messages so continuations can replay them.
	Config *core.ConfigSnapshot
}

// Request is the slice of the turn request the persister needs.
type Request struct {
	Text                 string
	Persist              bool
	InsertAfterMessageID string
}

// Result is what persistence produced.
type Result struct {
	IDs core.MessageIDs
	// Persisted is false for stateless records and persist=false turns.
	Persisted bool
	// Title and Suggestions reflect the enrichment outcome (fallbacks
	// included); empty when nothing was persisted.
	Title       string
	Suggestions []string
}

// Handle is the awaitable for one persistence run. The engine fires and
// forgets; tests and callers that need the enrichment outcome wait on it.
type Handle struct {
	done chan struct{}
	mu   sync.Mutex
	res  Result
	err  error
}

func newHandle() *Handle { return &Handle{done: make(chan struct{})} }

// Done is closed when the run (core write plus enrichment) has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.res, h.err
}

func (h *Handle) complete(res Result, err error) {
	h.mu.Lock()
	h.res, h.err = res, err
	h.mu.Unlock()
	close(h.done)
}

// PersistTurn records a completed turn asynchronously and returns
// immediately. Cancelled turns are persisted like completed ones; the
// answer already carries the cancellation marker. Stateless records and
// persist=false turns skip every write but still resolve the handle with
// the deterministic ids.
func (p *Persister) PersistTurn(ctx context.Context, rec *conversation.Record, t Turn) *Handle {
	h := newHandle()
	go func() {
		res, err := p.run(ctx, rec, t)
		if err != nil {
			p.logger.Error("failed to persist turn conversation_id=%s: %v", rec.ID, err)
		}
		h.complete(res, err)
	}()
	return h
}

func (p *Persister) run(ctx context.Context, rec *conversation.Record, t Turn) (Result, error) {
	ids := core.MessageIDs{
		User:  core.MessageID(t.Request.Text, core.SenderUser, rec.ID),
		Model: core.MessageID(t.Answer, core.SenderModel, rec.ID),
	}
	res := Result{IDs: ids}

	if rec.Stateless || !t.Request.Persist {
		return res, nil
	}

	userMsg := core.NewMessage(t.Request.Text, core.SenderUser, rec.UserID, rec.ID)
	modelMsg := core.NewMessage(t.Answer, core.SenderModel, rec.UserID, rec.ID)
	userMsg.Config = t.Config
	modelMsg.Config = t.Config

	summary := condense(t.Request.Text, t.Answer)

	pairIndex := -1 // -1 means append
	if after := t.Request.InsertAfterMessageID; after != "" {
		if err := rec.UpdateMessages(ctx, func(msgs []core.Message) []core.Message {
			at := spliceIndex(msgs, after)
			pairIndex = at / 2
			out := make([]core.Message, 0, len(msgs)+2)
			out = append(out, msgs[:at]...)
			out = append(out, userMsg, modelMsg)
			out = append(out, msgs[at:]...)
			return out
		}); err != nil {
			return res, fmt.Errorf("failed to splice messages: %w", err)
		}
	} else {
		if err := rec.AppendMessages(ctx, userMsg, modelMsg); err != nil {
			return res, fmt.Errorf("failed to append messages: %w", err)
		}
	}

	if err := rec.UpdateMemory(ctx, func(m *conversation.Memory) {
		if pairIndex >= 0 && pairIndex <= len(m.RunningSummary) {
			m.RunningSummary = append(m.RunningSummary[:pairIndex],
				append([]string{summary}, m.RunningSummary[pairIndex:]...)...)
		} else {
			m.RunningSummary = append(m.RunningSummary, summary)
		}
		m.LastUpdated = time.Now().UTC()
	}); err != nil {
		return res, fmt.Errorf("failed to update memory: %w", err)
	}

	if err := rec.Touch(); err != nil {
		return res, fmt.Errorf("failed to touch record: %w", err)
	}

	res.Persisted = true
	res.Title, res.Suggestions = p.enrichRecord(ctx, rec, t)
	return res, nil
}

// spliceIndex locates the insertion offset for a close-to-source turn:
// immediately after the named message's pair so the inserted pair sits
// between complete pairs. An unknown id degrades to append.
func spliceIndex(msgs []core.Message, afterID string) int {
	for i, m := range msgs {
		if m.ID != afterID {
			continue
		}
		at := i + 1
		// Step past the model half of the pair when the named message is
		// the user half.
		if m.Sender == core.SenderUser && at < len(msgs) && msgs[at].Sender == core.SenderModel {
			at++
		}
		return at
	}
	return len(msgs)
}

// enrichRecord recomputes title and suggestions with a bounded model pass,
// falling back to deterministic derivations. Failures are logged, never
// surfaced to the turn.
func (p *Persister) enrichRecord(ctx context.Context, rec *conversation.Record, t Turn) (string, []string) {
	mem, err := rec.Memory(ctx)
	if err != nil {
		p.logger.Warn("enrichment skipped, memory unreadable: %v", err)
		return "", nil
	}

	title := mem.Title
	suggestions := fallbackSuggestions
	if title == "" {
		title = fallbackTitle(t.Request.Text)
	}

	if p.enrich != nil {
		ectx, cancel := context.WithTimeout(ctx, p.enrichTimeout)
		defer cancel()

		var genTitle string
		var genSuggestions []string
		g, gctx := errgroup.WithContext(ectx)
		if !mem.TitleForceSet {
			g.Go(func() error {
				out, err := p.generate(gctx, "Write a short title (at most eight words) for this conversation. Output only the title.", t.Request.Text+"\n\n"+t.Answer)
				if err != nil {
					return err
				}
				genTitle = strings.TrimSpace(out)
				return nil
			})
		}
		g.Go(func() error {
			out, err := p.generate(gctx, "Suggest three short follow-up questions the user might ask next, one per line. Output only the questions.", t.Answer)
			if err != nil {
				return err
			}
			genSuggestions = splitLines(out, 3)
			return nil
		})
		if err := g.Wait(); err != nil {
			p.logger.Warn("enrichment pass degraded to fallbacks: %v", err)
		}
		if genTitle != "" {
			title = genTitle
		}
		if len(genSuggestions) > 0 {
			suggestions = genSuggestions
		}
	}

	if err := rec.UpdateMemory(ctx, func(m *conversation.Memory) {
		if !m.TitleForceSet && title != "" {
			m.Title = title
		}
		m.Suggestions = suggestions
	}); err != nil {
		p.logger.Warn("failed to store enrichment: %v", err)
	}
	return title, suggestions
}

func (p *Persister) generate(ctx context.Context, system, prompt string) (string, error) {
	respCh, errCh := p.enrich.Generate(ctx, backend.Request{System: system, Prompt: prompt})
	var out strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return "", err
			}
		case resp, ok := <-respCh:
			if !ok {
				return out.String(), nil
			}
			if !resp.Partial {
				out.Reset()
			}
			out.WriteString(resp.Text)
			if !resp.Partial {
				return out.String(), nil
			}
		}
	}
}

// condense derives the running-summary entry for a pair. Deterministic on
// purpose: the entry is written synchronously with the pair so the index
// invariant holds even when enrichment never runs.
func condense(question, answer string) string {
	q := firstLine(question)
	a := firstLine(answer)
	if len(q) > 120 {
		q = q[:120]
	}
	if len(a) > 200 {
		a = a[:200]
	}
	return fmt.Sprintf("Q: %s | A: %s", q, a)
}

func fallbackTitle(text string) string {
	t := firstLine(text)
	if len(t) > 60 {
		t = t[:60]
	}
	return t
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func splitLines(s string, max int) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}
