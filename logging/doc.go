// Package logging provides the minimal printf-style logging interface the
// engine and its services log through.
//
//   - Logger: the interface injected into every component
//   - NoOpLogger: silent default for tests and minimal setups
//   - EngineLogger: slog-backed implementation with component and
//     conversation/turn scoping
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(gen, sources, persister, func(o *engine.Options) {
//		o.Logger = logger.WithComponent("engine")
//	})
package logging
