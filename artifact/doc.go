// Package artifact implements the content-addressed cache for derived
// non-text artifacts (synthesized speech, rendered diagrams). Artifacts are
// keyed by a deterministic fingerprint of (message id, variant flags) with
// read-through, write-once semantics: an existing artifact is returned
// unconditionally, with no freshness check beyond existence.
//
// Storage backends implement the small Store interface; the filesystem and
// in-memory implementations here can be swapped without touching callers.
package artifact
