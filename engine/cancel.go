package engine

import "sync"

// cancelRegistry tracks cooperative per-conversation cancellation requests.
// A request is a flag, not a hard kill: the turn loop observes it at chunk
// boundaries and winds down through the normal finalize path. The flag is
// cleared when a new turn starts and again after finalize, so a request
// raised between turns never bleeds into the next one.
type cancelRegistry struct {
	mu        sync.Mutex
	requested map[string]bool
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{requested: make(map[string]bool)}
}

// Request flags the conversation's active turn for cancellation. Requesting
// a conversation with no active turn is harmless; the flag is discarded at
// the next turn start.
func (r *cancelRegistry) Request(conversationID string) {
	r.mu.Lock()
	r.requested[conversationID] = true
	r.mu.Unlock()
}

// Requested reports whether cancellation has been asked for.
func (r *cancelRegistry) Requested(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requested[conversationID]
}

// Clear drops any pending request for the conversation.
func (r *cancelRegistry) Clear(conversationID string) {
	r.mu.Lock()
	delete(r.requested, conversationID)
	r.mu.Unlock()
}
