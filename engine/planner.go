package engine

import (
	"context"
	"strings"
	"time"

	"github.com/faizanahemad/science-reader-sub002/backend"
	"github.com/faizanahemad/science-reader-sub002/conversation"
	"github.com/faizanahemad/science-reader-sub002/core"
)

// plan is the resolved input for one turn: flags after config pull-forward,
// the source set to consult, and the context snapshots read up front so the
// rest of the turn never touches storage.
type plan struct {
	req          core.TurnRequest
	docs         []core.UploadedDoc
	history      []core.Message
	memory       conversation.Memory
	priorContext string
}

// plan resolves the turn request against the conversation record. Explicit
// request fields always win; "tell me more" fills gaps from the prior model
// message's config snapshot so a continuation inherits the options that
// produced the answer being continued.
func (e *Engine) plan(ctx context.Context, rec *conversation.Record, req core.TurnRequest) (plan, error) {
	req.Flags.DetailLevel = req.Flags.DetailLevel.Clamp()

	lookback := req.Flags.HistoryLookback
	if lookback <= 0 {
		lookback = e.defaultLookback
	}

	history, err := rec.VisibleMessages(ctx, lookback)
	if err != nil {
		return plan{}, err
	}
	mem, err := rec.Memory(ctx)
	if err != nil {
		return plan{}, err
	}
	docs, err := rec.UploadedDocs(ctx)
	if err != nil {
		return plan{}, err
	}

	pl := plan{req: req, docs: docs, history: history, memory: mem}

	if req.Flags.TellMeMore {
		for i := len(history) - 1; i >= 0; i-- {
			m := history[i]
			if m.Sender != core.SenderModel {
				continue
			}
			pl.priorContext = m.Text
			if m.Config != nil {
				pl.req.Flags.WebSearch = pl.req.Flags.WebSearch || m.Config.WebSearch
				pl.req.Flags.Scholarly = pl.req.Flags.Scholarly || m.Config.Scholarly
				pl.req.Flags.CodeExecution = pl.req.Flags.CodeExecution || m.Config.CodeExecution
				pl.req.Flags.Diagrams = pl.req.Flags.Diagrams || m.Config.Diagrams
				if req.Flags.DetailLevel == 0 {
					pl.req.Flags.DetailLevel = core.DetailLevel(m.Config.DetailLevel).Clamp()
				}
			}
			break
		}
	}

	pl.req.Links = mergeLinks(req.Links, extractLinks(req.Text))

	if e.planner != nil && pl.req.Flags.WebSearch && len(pl.req.SearchQueries) == 0 {
		pl.req.SearchQueries = e.planQueries(ctx, pl.req.Text)
	}

	return pl, nil
}

// planQueries asks the lightweight planning model for search queries. The
// pass has its own deadline and degrades to the raw text on any failure.
func (e *Engine) planQueries(ctx context.Context, text string) []string {
	pctx, cancel := context.WithTimeout(ctx, e.plannerTimeout)
	defer cancel()

	start := time.Now()
	respCh, errCh := e.planner.Generate(pctx, backend.Request{
		System: "Rewrite the user question as at most three short web search queries, one per line. Output only the queries.",
		Prompt: text,
	})

	var out strings.Builder
	for {
		select {
		case <-pctx.Done():
			e.logger.Warn("planner pass timed out after %s, using raw text", time.Since(start))
			return nil
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				e.logger.Warn("planner pass failed: %v, using raw text", err)
				return nil
			}
		case resp, ok := <-respCh:
			if !ok {
				return splitQueries(out.String())
			}
			if !resp.Partial {
				out.Reset()
			}
			out.WriteString(resp.Text)
			if !resp.Partial {
				return splitQueries(out.String())
			}
		}
	}
}

func splitQueries(s string) []string {
	var queries []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line == "" {
			continue
		}
		queries = append(queries, line)
		if len(queries) == 3 {
			break
		}
	}
	return queries
}

func mergeLinks(explicit, extracted []string) []string {
	seen := make(map[string]struct{}, len(explicit)+len(extracted))
	var out []string
	for _, u := range append(append([]string{}, explicit...), extracted...) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func extractLinks(text string) []string {
	var links []string
	for _, f := range strings.Fields(text) {
		f = strings.TrimRight(f, ".,;:)]}>\"'")
		if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
			links = append(links, f)
		}
	}
	return links
}
