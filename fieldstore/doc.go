// Package fieldstore implements durable key/value persistence for one
// conversation's sub-documents (memory, messages, uploaded-doc index).
//
// Each registered field is independently lockable and kept in two on-disk
// representations: a human-diffable JSON fast path and a binary-exact gob
// snapshot. Reads are lazy and cached; writes merge by default (dict union,
// sequence append, string concatenation) unless overwrite is requested,
// which is what lets concurrent partial updates from the turn-persistence
// path compose with the main path instead of clobbering it.
package fieldstore
