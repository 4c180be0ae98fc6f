package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faizanahemad/science-reader-sub002/artifact"
	"github.com/faizanahemad/science-reader-sub002/backend"
	"github.com/faizanahemad/science-reader-sub002/code"
	"github.com/faizanahemad/science-reader-sub002/conversation"
	"github.com/faizanahemad/science-reader-sub002/core"
	"github.com/faizanahemad/science-reader-sub002/internal/textutil"
	"github.com/faizanahemad/science-reader-sub002/logging"
	"github.com/faizanahemad/science-reader-sub002/persist"
	"github.com/faizanahemad/science-reader-sub002/source"
)

// NoUsableSourcesAnswer is the degenerate answer emitted when every
// consulted source failed or came back empty. It is persisted like any
// other answer so the pair and summary invariants hold.
const NoUsableSourcesAnswer = "search failed, no usable sources"

// cancelledMarker is appended to the answer of a cancelled turn before
// persistence.
const cancelledMarker = "\n\n[cancelled by user]"

// collectPollInterval is how often the collector re-checks source deadlines.
const collectPollInterval = 100 * time.Millisecond

// DiagramRenderer rasterizes a diagram source block (mermaid, graphviz)
// into an image.
type DiagramRenderer interface {
	Render(src string) ([]byte, error)
}

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// MaxConcurrentSources limits concurrent source fetches.
	MaxConcurrentSources int
	// EnableStreaming toggles real-time chunk streaming vs buffered.
	EnableStreaming bool
	// EventBufferSize sets channel buffering for turn events.
	EventBufferSize int
	// DefaultLookback bounds prompt history to this many message pairs
	// when the request does not say otherwise.
	DefaultLookback int
	// Planner, when set, runs a lightweight query-rewrite pass before
	// dispatch. Optional; the raw text is used when absent or failing.
	Planner backend.Generator
	// PlannerTimeout bounds the planner pass.
	PlannerTimeout time.Duration
	// CodeExecutor runs detected runnable code fences. Optional.
	CodeExecutor code.Executor
	// DiagramRenderer rasterizes detected diagram fences. Optional;
	// requires Artifacts to store the output.
	DiagramRenderer DiagramRenderer
	// Artifacts caches rendered diagram images.
	Artifacts *artifact.Cache
	// HandleRetention is how long a completed turn's persistence handle
	// stays retrievable via PersistHandle before eviction.
	HandleRetention time.Duration
	// Logger receives engine diagnostics.
	Logger logging.Logger
}

// Engine drives turns end to end: it resolves the request, fans out to
// sources on a bounded pool, assembles the prompt, streams generation,
// applies fence side effects, and hands the finished pair to the persister.
// Public methods are safe for concurrent use.
type Engine struct {
	generator backend.Generator
	sources   source.Factory
	persister *persist.Persister

	maxConcurrentSources int
	enableStreaming      bool
	eventBufferSize      int
	defaultLookback      int

	planner         backend.Generator
	plannerTimeout  time.Duration
	codeExec        code.Executor
	diagrams        DiagramRenderer
	artifacts       *artifact.Cache
	handleRetention time.Duration
	logger          logging.Logger

	pool    *workerPool
	cancels *cancelRegistry

	mu          sync.RWMutex
	activeTurns map[string]context.CancelFunc
	handles     map[string]*persist.Handle
}

// New constructs an Engine with optional overrides.
func New(generator backend.Generator, sources source.Factory, persister *persist.Persister, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxConcurrentSources: 4,
		EnableStreaming:      true,
		EventBufferSize:      100,
		DefaultLookback:      8,
		PlannerTimeout:       2 * time.Second,
		HandleRetention:      time.Minute,
		Logger:               logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Engine{
		generator:            generator,
		sources:              sources,
		persister:            persister,
		maxConcurrentSources: opts.MaxConcurrentSources,
		enableStreaming:      opts.EnableStreaming,
		eventBufferSize:      opts.EventBufferSize,
		defaultLookback:      opts.DefaultLookback,
		planner:              opts.Planner,
		plannerTimeout:       opts.PlannerTimeout,
		codeExec:             opts.CodeExecutor,
		diagrams:             opts.DiagramRenderer,
		artifacts:            opts.Artifacts,
		handleRetention:      opts.HandleRetention,
		logger:               opts.Logger,
		pool:                 newWorkerPool(opts.MaxConcurrentSources),
		cancels:              newCancelRegistry(),
		activeTurns:          make(map[string]context.CancelFunc),
		handles:              make(map[string]*persist.Handle),
	}
}

// Run starts an asynchronous turn. The event channel carries status and
// chunk events and ends with exactly one terminal event; the error channel
// carries at most one fatal error.
func (e *Engine) Run(ctx context.Context, rec *conversation.Record, req core.TurnRequest) (string, <-chan core.TurnEvent, <-chan error, error) {
	if strings.TrimSpace(req.Text) == "" && !req.Flags.TellMeMore {
		return "", nil, nil, fmt.Errorf("empty turn request")
	}

	turnID := uuid.NewString()
	eventsCh := make(chan core.TurnEvent, e.eventBufferSize)
	errorsCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.activeTurns[turnID] = cancel
	e.mu.Unlock()

	// A fresh turn never inherits a cancellation raised between turns.
	e.cancels.Clear(rec.ID)

	go func() {
		defer func() {
			close(eventsCh)
			close(errorsCh)
			cancel()
			e.mu.Lock()
			delete(e.activeTurns, turnID)
			e.mu.Unlock()
		}()
		e.runTurn(ctx, turnID, rec, req, eventsCh, errorsCh)
	}()

	return turnID, eventsCh, errorsCh, nil
}

// CancelConversation requests cooperative cancellation of the
// conversation's active turn. The turn observes the flag at the next chunk
// boundary and finalizes with the partial answer.
func (e *Engine) CancelConversation(conversationID string) {
	e.cancels.Request(conversationID)
}

// CancelTurn hard-cancels a turn by id.
func (e *Engine) CancelTurn(turnID string) error {
	e.mu.RLock()
	cancel, ok := e.activeTurns[turnID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("turn %s not found", turnID)
	}
	cancel()
	return nil
}

// PersistHandle returns the persistence handle for a turn that reached
// finalize.
func (e *Engine) PersistHandle(turnID string) (*persist.Handle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handles[turnID]
	return h, ok
}

func (e *Engine) runTurn(ctx context.Context, turnID string, rec *conversation.Record, req core.TurnRequest, eventsCh chan<- core.TurnEvent, errorsCh chan<- error) {
	log := e.logger
	if el, ok := log.(*logging.EngineLogger); ok {
		log = el.WithConversation(rec.ID, turnID)
	}
	turnStart := time.Now()

	emit := func(ev core.TurnEvent) bool {
		select {
		case <-ctx.Done():
			return false
		case eventsCh <- ev:
			return true
		}
	}
	fatal := func(err error) {
		e.cancels.Clear(rec.ID)
		emit(core.TurnEvent{Status: core.StatusError, Text: err.Error()})
		select {
		case errorsCh <- err:
		default:
		}
	}

	emit(core.TurnEvent{Status: core.StatusPlanning})
	pl, err := e.plan(ctx, rec, req)
	if err != nil {
		fatal(fmt.Errorf("failed to plan turn: %w", err))
		return
	}

	producers, err := e.sources.ForRequest(pl.req, pl.docs, pl.priorContext)
	if err != nil {
		fatal(err)
		return
	}

	results := e.collect(ctx, pl, producers, emit, log)

	cfg := &core.ConfigSnapshot{
		WebSearch:     pl.req.Flags.WebSearch,
		Scholarly:     pl.req.Flags.Scholarly,
		CodeExecution: pl.req.Flags.CodeExecution,
		Diagrams:      pl.req.Flags.Diagrams,
		DetailLevel:   int(pl.req.Flags.DetailLevel),
	}
	persistTurn := func(answer string, cancelled bool) {
		handle := e.persister.PersistTurn(context.WithoutCancel(ctx), rec, persist.Turn{
			Request: persist.Request{
				Text:                 pl.req.Text,
				Persist:              pl.req.Flags.Persist,
				InsertAfterMessageID: pl.req.InsertAfterMessageID,
			},
			Answer:    answer,
			Cancelled: cancelled,
			Config:    cfg,
		})
		e.mu.Lock()
		e.handles[turnID] = handle
		e.mu.Unlock()
		// The handle stays retrievable for a retention window after the
		// write completes, then the registry entry is evicted.
		go func() {
			<-handle.Done()
			time.AfterFunc(e.handleRetention, func() {
				e.mu.Lock()
				delete(e.handles, turnID)
				e.mu.Unlock()
			})
		}()
	}

	var answer string
	var cancelled bool
	if len(producers) > 0 && len(results) == 0 {
		// Every consulted source failed or was empty. A degenerate but
		// well-formed turn; no generation call is made.
		log.Warn("all %d sources failed, emitting sentinel answer", len(producers))
		answer = NoUsableSourcesAnswer
		emit(core.TurnEvent{Status: core.StatusGenerating, Text: answer})
	} else {
		answer, cancelled, err = e.generate(ctx, rec, pl, results, emit, log)
		if err != nil {
			// The turn failed, but chunks already streamed are not thrown
			// away: whatever partial answer exists is still persisted.
			if strings.TrimSpace(answer) != "" {
				persistTurn(answer, false)
			}
			fatal(err)
			return
		}
	}

	status := core.StatusDone
	if cancelled {
		answer += cancelledMarker
		status = core.StatusCancelled
	}

	persistTurn(answer, cancelled)

	// A cancellation consumed by this turn must not leak into the next.
	e.cancels.Clear(rec.ID)

	ids := core.MessageIDs{
		User:  core.MessageID(pl.req.Text, core.SenderUser, rec.ID),
		Model: core.MessageID(answer, core.SenderModel, rec.ID),
	}
	log.Info("turn finished state=%s sources=%d duration=%s", status, len(results), time.Since(turnStart))

	// Every stream ends with the terminal event carrying the pair ids. The
	// send blocks until the consumer drains the buffer; only a hard context
	// cancel releases it early.
	select {
	case eventsCh <- core.TurnEvent{Status: status, MessageIDs: &ids}:
	case <-ctx.Done():
	}
}

type sourceOutcome struct {
	index   int
	kind    core.SourceKind
	result  core.SourceResult
	err     error
	elapsed time.Duration
}

// collect fans the producers out on the bounded pool and polls for results.
// Each source class has its own deadline scaled by the detail level; a
// producer that overruns its budget is dropped, not killed. Failures are
// logged and excluded, never fatal.
func (e *Engine) collect(ctx context.Context, pl plan, producers []core.SourceProducer, emit func(core.TurnEvent) bool, log logging.Logger) []core.SourceResult {
	if len(producers) == 0 {
		return nil
	}

	var searching, reading bool
	for _, p := range producers {
		switch p.Kind() {
		case core.KindWebSearch, core.KindContinuation:
			searching = true
		case core.KindDocument, core.KindLink:
			reading = true
		}
	}
	if searching {
		emit(core.TurnEvent{Status: core.StatusSearching})
	}
	if reading {
		emit(core.TurnEvent{Status: core.StatusReading})
	}

	level := pl.req.Flags.DetailLevel
	outCh := make(chan sourceOutcome, len(producers))
	deadlines := make([]time.Time, len(producers))
	now := time.Now()
	for i, p := range producers {
		i, p := i, p
		budget := core.SourceBudget(p.Kind(), level)
		deadlines[i] = now.Add(budget)
		query := pl.req.Text
		if err := e.pool.Submit(ctx, func() {
			start := time.Now()
			res, err := p.Run(ctx, query, budget)
			outCh <- sourceOutcome{index: i, kind: p.Kind(), result: res, err: err, elapsed: time.Since(start)}
		}); err != nil {
			return nil
		}
	}

	ticker := time.NewTicker(collectPollInterval)
	defer ticker.Stop()

	collected := make([]core.SourceResult, 0, len(producers))
	settled := make([]bool, len(producers))
	pending := len(producers)
	for pending > 0 {
		select {
		case <-ctx.Done():
			return collected
		case o := <-outCh:
			if settled[o.index] {
				continue // budget already expired, result dropped
			}
			settled[o.index] = true
			pending--
			if o.err != nil {
				log.Warn("source %s failed after %s: %v", o.kind, o.elapsed, o.err)
				continue
			}
			log.Debug("source %s fetched bytes=%d duration=%s", o.kind, len(o.result.Content), o.elapsed)
			if strings.TrimSpace(o.result.Content) == "" {
				continue
			}
			collected = append(collected, o.result)
		case <-ticker.C:
			now := time.Now()
			for i, d := range deadlines {
				if settled[i] || now.Before(d) {
					continue
				}
				settled[i] = true
				pending--
				log.Warn("source %s exceeded its %s budget, dropping", producers[i].Kind(), core.SourceBudget(producers[i].Kind(), level))
			}
		}
	}
	return collected
}

// generate assembles the prompt and streams the answer, applying fence side
// effects as blocks complete. Cancellation is observed at chunk boundaries;
// the partial answer is returned with cancelled=true.
func (e *Engine) generate(ctx context.Context, rec *conversation.Record, pl plan, results []core.SourceResult, emit func(core.TurnEvent) bool, log logging.Logger) (string, bool, error) {
	parts := promptParts{
		history:      pl.history,
		continuation: pl.priorContext,
		userText:     pl.req.Text,
	}
	if len(pl.memory.RunningSummary) > 0 {
		parts.memory = strings.Join(pl.memory.RunningSummary, "\n")
	}
	for _, r := range results {
		switch r.Kind {
		case core.KindWebSearch:
			parts.web = append(parts.web, r.Content)
		case core.KindDocument:
			parts.documents = append(parts.documents, r.Content)
		case core.KindLink:
			parts.links = append(parts.links, r.Content)
		case core.KindContinuation:
			parts.continuation = r.Content
		}
	}

	prompt := buildPrompt(core.PromptWindow(pl.req.Flags.DetailLevel), parts)

	gctx, gcancel := context.WithCancel(ctx)
	defer gcancel()

	start := time.Now()
	respCh, errCh := e.generator.Generate(gctx, backend.Request{
		Prompt: prompt,
		Stream: e.enableStreaming,
	})

	scanner := textutil.NewFenceScanner()
	var answer strings.Builder
	var extras strings.Builder
	chunks := 0
	cancelled := false

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			cancelled = true
			gcancel()
			respCh, errCh = nil, nil
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				if cancelled {
					continue
				}
				log.Error("generation failed model=%s chunks=%d duration=%s: %v", e.generator.Info().Name, chunks, time.Since(start), err)
				// Return the partial answer so the caller can persist it.
				return answer.String() + extras.String(), false, &backend.GenerationError{Provider: e.generator.Info().Provider, Err: err}
			}
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if cancelled {
				continue
			}
			if resp.Partial {
				chunks++
				answer.WriteString(resp.Text)
				emit(core.TurnEvent{Status: core.StatusGenerating, Text: resp.Text})
			} else if resp.Text != "" {
				// Final response is authoritative. In buffered mode it is
				// also the only chunk the caller sees.
				if answer.Len() == 0 {
					emit(core.TurnEvent{Status: core.StatusGenerating, Text: resp.Text})
				}
				answer.Reset()
				answer.WriteString(resp.Text)
			}
			e.applySideEffects(ctx, rec, pl.req.Flags, scanner, answer.String(), &extras, emit, log)
			if e.cancels.Requested(rec.ID) {
				cancelled = true
				gcancel()
			}
		}
	}

	log.Debug("generation finished model=%s chunks=%d duration=%s", e.generator.Info().Name, chunks, time.Since(start))
	return answer.String() + extras.String(), cancelled, nil
}

// applySideEffects scans the accumulated answer for newly completed fences
// and triggers execution or rendering. Each unique block fires at most
// once; outputs are streamed and appended to the persisted answer.
func (e *Engine) applySideEffects(ctx context.Context, rec *conversation.Record, flags core.TurnFlags, scanner *textutil.FenceScanner, buf string, extras *strings.Builder, emit func(core.TurnEvent) bool, log logging.Logger) {
	for _, f := range scanner.Scan(buf) {
		switch {
		case flags.CodeExecution && e.codeExec != nil && isExecutable(f.Lang):
			out, err := e.codeExec.Execute(f.Body)
			if err != nil {
				log.Warn("code execution failed: %v", err)
				continue
			}
			block := "\n```output\n" + out + "\n```\n"
			extras.WriteString(block)
			emit(core.TurnEvent{Status: core.StatusGenerating, Text: block})
		case flags.Diagrams && e.diagrams != nil && e.artifacts != nil && isDiagram(f.Lang):
			body := f.Body
			fp := artifact.Fingerprint(rec.ID, "diagram", body)
			path, err := e.artifacts.GetOrCreate(ctx, fp, false, func(context.Context) ([]byte, error) {
				return e.diagrams.Render(body)
			})
			if err != nil {
				log.Warn("diagram rendering failed: %v", err)
				continue
			}
			ref := "\n![diagram](" + path + ")\n"
			extras.WriteString(ref)
			emit(core.TurnEvent{Status: core.StatusGenerating, Text: ref})
		}
	}
}

func isExecutable(lang string) bool {
	switch strings.ToLower(lang) {
	case "python", "py", "bash", "sh":
		return true
	}
	return false
}

func isDiagram(lang string) bool {
	switch strings.ToLower(lang) {
	case "mermaid", "graphviz", "dot", "plantuml":
		return true
	}
	return false
}
