// Package keylock provides per-(conversation, field) mutual exclusion for the
// durable conversation store. Locks are held at most once per key within the
// process and, because each key is additionally backed by a filesystem lock
// file, across processes sharing the same storage root.
package keylock
