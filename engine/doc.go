// Package engine orchestrates conversation turns.
//
// A turn moves through a fixed pipeline: plan the request (config
// pull-forward, link extraction, optional query rewrite), fan out to the
// activated source producers on a bounded worker pool, collect results
// under per-class deadlines, assemble a budgeted prompt, stream the
// generated answer while applying fence side effects, and hand the finished
// pair to the persister. Progress is reported as a stream of
// core.TurnEvent values ending in exactly one terminal event.
//
// Source failures degrade the turn instead of failing it; only generation
// errors are fatal. Cancellation is cooperative per conversation: a request
// flags the active turn, which winds down at the next chunk boundary and
// persists the partial answer.
package engine
