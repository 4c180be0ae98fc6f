// Package sciencereader provides a high-level façade over the turn engine
// and its services (conversation storage, locking, artifacts, persistence &
// logging). Most applications interact with this package by:
//  1. Creating a Reader via New() with a loaded config
//  2. Creating or opening conversations
//  3. Running turns asynchronously (RunTurn) or synchronously (RunTurnSync)
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. The mock backend and a temp data dir are enough for
// local development and testing; production deployments supply a real
// provider and a structured logger.
package sciencereader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/faizanahemad/science-reader-sub002/artifact"
	"github.com/faizanahemad/science-reader-sub002/backend"
	backendanthropic "github.com/faizanahemad/science-reader-sub002/backend/anthropic"
	backendopenai "github.com/faizanahemad/science-reader-sub002/backend/openai"
	"github.com/faizanahemad/science-reader-sub002/code"
	"github.com/faizanahemad/science-reader-sub002/config"
	"github.com/faizanahemad/science-reader-sub002/conversation"
	"github.com/faizanahemad/science-reader-sub002/core"
	"github.com/faizanahemad/science-reader-sub002/engine"
	"github.com/faizanahemad/science-reader-sub002/keylock"
	"github.com/faizanahemad/science-reader-sub002/logging"
	"github.com/faizanahemad/science-reader-sub002/persist"
	"github.com/faizanahemad/science-reader-sub002/source"
)

// Options configures the Reader beyond what the file config carries:
// concrete clients and overrides that only make sense in code.
type Options struct {
	// Generator overrides the provider selected by the config.
	Generator backend.Generator
	// Enricher generates titles and suggestions; defaults to Generator.
	Enricher backend.Generator
	// Source clients. Nil clients deactivate their producer class.
	Search source.SearchClient
	Docs   source.DocReader
	Links  source.LinkFetcher
	// Engine extras passed through.
	Planner         backend.Generator
	CodeExecutor    code.Executor
	DiagramRenderer engine.DiagramRenderer
	// Logger (defaults to a config-derived slog logger if nil).
	Logger logging.Logger
}

// Reader is the high-level façade aggregating the engine and its services.
type Reader struct {
	cfg       *config.Config
	locks     *keylock.Manager
	artifacts *artifact.Cache
	persister *persist.Persister
	engine    *engine.Engine
	logger    logging.Logger
}

// New creates a Reader from a validated config with optional overrides.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Reader, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)
	}
	scoped := func(component string) logging.Logger {
		if el, ok := logger.(*logging.EngineLogger); ok {
			return el.WithComponent(component)
		}
		return logger
	}

	locks, err := keylock.NewManager(cfg.Storage.DataDir, func(o *keylock.Options) {
		if cfg.Storage.LockTimeout > 0 {
			o.Timeout = cfg.Storage.LockTimeout
		}
		o.Logger = scoped("keylock")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init lock manager: %w", err)
	}

	generator := opts.Generator
	if generator == nil {
		generator, err = newGenerator(cfg.Backend)
		if err != nil {
			return nil, err
		}
	}
	enricher := opts.Enricher
	if enricher == nil {
		enricher = generator
	}

	artifacts := artifact.NewCache(
		artifact.NewFSStore(filepath.Join(cfg.Storage.DataDir, "artifacts")),
		func(o *artifact.Options) { o.Logger = scoped("artifact") },
	)

	persister := persist.New(enricher, func(o *persist.Options) {
		if cfg.Persist.EnrichTimeout > 0 {
			o.EnrichTimeout = cfg.Persist.EnrichTimeout
		}
		o.Logger = scoped("persist")
	})

	// Zero-valued config fields keep the engine defaults; a hand-built
	// Config struct only overrides what it sets.
	eng := engine.New(generator, source.Factory{
		Search: opts.Search,
		Docs:   opts.Docs,
		Links:  opts.Links,
	}, persister, func(o *engine.Options) {
		if cfg.Engine.MaxConcurrentSources > 0 {
			o.MaxConcurrentSources = cfg.Engine.MaxConcurrentSources
		}
		if cfg.Engine.EventBufferSize > 0 {
			o.EventBufferSize = cfg.Engine.EventBufferSize
		}
		if cfg.Engine.DefaultLookback > 0 {
			o.DefaultLookback = cfg.Engine.DefaultLookback
		}
		if cfg.Engine.PlannerTimeout > 0 {
			o.PlannerTimeout = cfg.Engine.PlannerTimeout
		}
		o.EnableStreaming = cfg.Engine.Streaming
		o.Planner = opts.Planner
		o.CodeExecutor = opts.CodeExecutor
		o.DiagramRenderer = opts.DiagramRenderer
		o.Artifacts = artifacts
		o.Logger = scoped("engine")
	})

	return &Reader{
		cfg:       cfg,
		locks:     locks,
		artifacts: artifacts,
		persister: persister,
		engine:    eng,
		logger:    logger,
	}, nil
}

func newGenerator(cfg config.BackendConfig) (backend.Generator, error) {
	switch cfg.Provider {
	case "openai":
		client := openaisdk.NewClient(option.WithAPIKey(cfg.APIKey))
		return backendopenai.NewFromClient(&client, func(o *backendopenai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case "anthropic":
		return backendanthropic.New(func(o *backendanthropic.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case "mock":
		return backend.NewMock("mock"), nil
	}
	return nil, fmt.Errorf("backend provider %q is not supported", cfg.Provider)
}

// Engine exposes the underlying engine for callers needing direct control.
func (r *Reader) Engine() *engine.Engine { return r.engine }

// Artifacts exposes the artifact cache.
func (r *Reader) Artifacts() *artifact.Cache { return r.artifacts }

// CreateConversation makes a new conversation record under the data dir.
func (r *Reader) CreateConversation(id, userID, domain string, stateless bool) (*conversation.Record, error) {
	return conversation.Create(r.cfg.Storage.DataDir, r.locks, id, userID, domain, stateless, r.recordOptions())
}

// OpenConversation loads an existing conversation record.
func (r *Reader) OpenConversation(id string) (*conversation.Record, error) {
	return conversation.Open(r.cfg.Storage.DataDir, r.locks, id, r.recordOptions())
}

// DeleteConversation removes a conversation's entire storage subtree. A
// corrupt record is deleted too; that is the designated recovery path.
func (r *Reader) DeleteConversation(id string) error {
	rec, err := r.OpenConversation(id)
	if err != nil {
		var corrupt *conversation.CorruptRecordError
		if errors.As(err, &corrupt) {
			return os.RemoveAll(conversation.DirFor(r.cfg.Storage.DataDir, id))
		}
		return err
	}
	return rec.Delete()
}

// CloneConversation copies a conversation's state under a new id.
func (r *Reader) CloneConversation(id, newID string) (*conversation.Record, error) {
	rec, err := r.OpenConversation(id)
	if err != nil {
		return nil, err
	}
	return rec.CloneInto(r.cfg.Storage.DataDir, newID, r.locks, r.recordOptions())
}

func (r *Reader) recordOptions() func(o *conversation.Options) {
	return func(o *conversation.Options) {
		if r.cfg.Storage.LockTimeout > 0 {
			o.LockTimeout = r.cfg.Storage.LockTimeout
		}
		o.Logger = r.logger
	}
}

// RunTurn starts an asynchronous turn on the conversation.
func (r *Reader) RunTurn(ctx context.Context, rec *conversation.Record, req core.TurnRequest) (string, <-chan core.TurnEvent, <-chan error, error) {
	return r.engine.Run(ctx, rec, req)
}

// CancelConversation requests cooperative cancellation of the
// conversation's active turn.
func (r *Reader) CancelConversation(conversationID string) {
	r.engine.CancelConversation(conversationID)
}

// RunTurnSync runs a turn to completion and returns the assembled answer
// with the terminal event.
func (r *Reader) RunTurnSync(ctx context.Context, rec *conversation.Record, req core.TurnRequest) (string, core.TurnEvent, error) {
	_, events, errs, err := r.engine.Run(ctx, rec, req)
	if err != nil {
		return "", core.TurnEvent{}, err
	}

	var answer strings.Builder
	var terminal core.TurnEvent
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Status == core.StatusGenerating {
				answer.WriteString(ev.Text)
			}
			if ev.IsTerminal() {
				terminal = ev
			}
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if e != nil {
				return answer.String(), terminal, e
			}
		}
	}
	return answer.String(), terminal, nil
}
