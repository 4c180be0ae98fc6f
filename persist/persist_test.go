package persist

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faizanahemad/science-reader-sub002/backend"
	"github.com/faizanahemad/science-reader-sub002/conversation"
	"github.com/faizanahemad/science-reader-sub002/core"
	"github.com/faizanahemad/science-reader-sub002/keylock"
)

func newTestRecord(t *testing.T, stateless bool) *conversation.Record {
	t.Helper()
	root := t.TempDir()
	locks, err := keylock.NewManager(root)
	require.NoError(t, err)
	rec, err := conversation.Create(root, locks, "conv-1", "user-1", "assistant", stateless)
	require.NoError(t, err)
	return rec
}

func waitHandle(t *testing.T, h *Handle) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestPersistAppendsPairAndSummary(t *testing.T) {
	rec := newTestRecord(t, false)
	p := New(nil)
	ctx := context.Background()

	h := p.PersistTurn(ctx, rec, Turn{
		Request: Request{Text: "what is raft?", Persist: true},
		Answer:  "Raft is a consensus algorithm.",
	})
	res := waitHandle(t, h)

	assert.True(t, res.Persisted)
	assert.Equal(t, core.MessageID("what is raft?", core.SenderUser, rec.ID), res.IDs.User)
	assert.Equal(t, core.MessageID("Raft is a consensus algorithm.", core.SenderModel, rec.ID), res.IDs.Model)

	msgs, err := rec.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.SenderUser, msgs[0].Sender)
	assert.Equal(t, core.SenderModel, msgs[1].Sender)
	assert.Equal(t, res.IDs.User, msgs[0].ID)

	mem, err := rec.Memory(ctx)
	require.NoError(t, err)
	require.Len(t, mem.RunningSummary, 1)
	assert.Contains(t, mem.RunningSummary[0], "what is raft?")
	assert.False(t, mem.LastUpdated.IsZero())
}

func TestSummaryIndexTracksPairIndex(t *testing.T) {
	rec := newTestRecord(t, false)
	p := New(nil)
	ctx := context.Background()

	for _, turn := range []Turn{
		{Request: Request{Text: "q1", Persist: true}, Answer: "a1"},
		{Request: Request{Text: "q2", Persist: true}, Answer: "a2"},
		{Request: Request{Text: "q3", Persist: true}, Answer: "a3"},
	} {
		waitHandle(t, p.PersistTurn(ctx, rec, turn))
	}

	msgs, err := rec.Messages(ctx)
	require.NoError(t, err)
	mem, err := rec.Memory(ctx)
	require.NoError(t, err)
	require.Equal(t, len(msgs)/2, len(mem.RunningSummary))
	for i, s := range mem.RunningSummary {
		assert.Contains(t, s, msgs[i*2].Text)
	}
}

func TestSpliceInsertKeepsCorrespondence(t *testing.T) {
	rec := newTestRecord(t, false)
	p := New(nil)
	ctx := context.Background()

	waitHandle(t, p.PersistTurn(ctx, rec, Turn{Request: Request{Text: "q1", Persist: true}, Answer: "a1"}))
	waitHandle(t, p.PersistTurn(ctx, rec, Turn{Request: Request{Text: "q2", Persist: true}, Answer: "a2"}))

	// Insert a follow-up right after the first pair.
	firstUserID := core.MessageID("q1", core.SenderUser, rec.ID)
	waitHandle(t, p.PersistTurn(ctx, rec, Turn{
		Request: Request{Text: "q1b", Persist: true, InsertAfterMessageID: firstUserID},
		Answer:  "a1b",
	}))

	msgs, err := rec.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	assert.Equal(t, []string{"q1", "a1", "q1b", "a1b", "q2", "a2"},
		[]string{msgs[0].Text, msgs[1].Text, msgs[2].Text, msgs[3].Text, msgs[4].Text, msgs[5].Text})

	mem, err := rec.Memory(ctx)
	require.NoError(t, err)
	require.Len(t, mem.RunningSummary, 3)
	for i, s := range mem.RunningSummary {
		assert.Contains(t, s, msgs[i*2].Text, "summary %d must describe pair %d", i, i)
	}
}

func TestSpliceUnknownIDDegradesToAppend(t *testing.T) {
	rec := newTestRecord(t, false)
	p := New(nil)
	ctx := context.Background()

	waitHandle(t, p.PersistTurn(ctx, rec, Turn{Request: Request{Text: "q1", Persist: true}, Answer: "a1"}))
	waitHandle(t, p.PersistTurn(ctx, rec, Turn{
		Request: Request{Text: "q2", Persist: true, InsertAfterMessageID: "no-such-id"},
		Answer:  "a2",
	}))

	msgs, err := rec.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "q2", msgs[2].Text)
}

func TestStatelessSkipsWrites(t *testing.T) {
	rec := newTestRecord(t, true)
	p := New(nil)
	ctx := context.Background()

	h := p.PersistTurn(ctx, rec, Turn{Request: Request{Text: "q", Persist: true}, Answer: "a"})
	res := waitHandle(t, h)

	assert.False(t, res.Persisted)
	assert.NotEmpty(t, res.IDs.User) // ids are deterministic even without writes

	msgs, err := rec.Messages(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPersistFlagOffSkipsWrites(t *testing.T) {
	rec := newTestRecord(t, false)
	p := New(nil)
	ctx := context.Background()

	res := waitHandle(t, p.PersistTurn(ctx, rec, Turn{Request: Request{Text: "q", Persist: false}, Answer: "a"}))
	assert.False(t, res.Persisted)

	msgs, err := rec.Messages(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCancelledTurnPersists(t *testing.T) {
	rec := newTestRecord(t, false)
	p := New(nil)
	ctx := context.Background()

	res := waitHandle(t, p.PersistTurn(ctx, rec, Turn{
		Request:   Request{Text: "q", Persist: true},
		Answer:    "partial answer\n\n[cancelled by user]",
		Cancelled: true,
	}))
	assert.True(t, res.Persisted)

	msgs, err := rec.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "[cancelled by user]")
}

func TestEnrichmentFallbacksWithoutModel(t *testing.T) {
	rec := newTestRecord(t, false)
	p := New(nil)
	ctx := context.Background()

	res := waitHandle(t, p.PersistTurn(ctx, rec, Turn{
		Request: Request{Text: "Explain the CAP theorem", Persist: true},
		Answer:  "It is about tradeoffs.",
	}))
	assert.Equal(t, "Explain the CAP theorem", res.Title)
	assert.NotEmpty(t, res.Suggestions)

	mem, err := rec.Memory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Explain the CAP theorem", mem.Title)
	assert.Equal(t, res.Suggestions, mem.Suggestions)
}

// fakeEnricher answers the title and suggestion passes distinctly by
// inspecting the system instruction.
type fakeEnricher struct{}

func (fakeEnricher) Generate(_ context.Context, req backend.Request) (<-chan backend.Response, <-chan error) {
	respCh := make(chan backend.Response, 1)
	errCh := make(chan error)
	out := "Consensus Basics"
	if strings.Contains(req.System, "follow-up") {
		out = "What about Paxos?\nHow does leader election work?\nWhat are the failure modes?"
	}
	respCh <- backend.Response{Text: out, FinishReason: "stop"}
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (fakeEnricher) Info() backend.Info { return backend.Info{Name: "fake-enrich", Provider: "mock"} }

func TestEnrichmentUsesModel(t *testing.T) {
	rec := newTestRecord(t, false)
	p := New(fakeEnricher{})
	ctx := context.Background()

	res := waitHandle(t, p.PersistTurn(ctx, rec, Turn{
		Request: Request{Text: "what is raft?", Persist: true},
		Answer:  "Raft is a consensus algorithm.",
	}))
	assert.Equal(t, "Consensus Basics", res.Title)
	require.Len(t, res.Suggestions, 3)
	assert.Equal(t, "What about Paxos?", res.Suggestions[0])
}

func TestForceSetTitleNotOverwritten(t *testing.T) {
	rec := newTestRecord(t, false)
	ctx := context.Background()
	require.NoError(t, rec.SetMemory(ctx, conversation.Memory{Title: "My Title", TitleForceSet: true}))

	enrich := backend.NewMock("enrich")
	p := New(enrich)

	waitHandle(t, p.PersistTurn(ctx, rec, Turn{
		Request: Request{Text: "q", Persist: true},
		Answer:  "a",
	}))

	mem, err := rec.Memory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "My Title", mem.Title)
	assert.True(t, mem.TitleForceSet)
}
