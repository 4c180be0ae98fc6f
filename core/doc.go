// Package core provides the foundational domain types and interfaces used by
// the science-reader turn engine. It defines the core abstractions for:
//
//   - Messages (deterministically fingerprinted conversation units)
//   - Turn requests and the streamed turn event protocol
//   - SourceProducers (asynchronous information sources consulted per turn)
//   - Detail-level time and prompt budgets
//
// The package intentionally keeps implementation concerns (persistence,
// orchestration, concrete producers) out of scope, exposing small interfaces
// to enable custom backends and extensions.
package core
