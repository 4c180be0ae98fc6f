package conversation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faizanahemad/science-reader-sub002/core"
	"github.com/faizanahemad/science-reader-sub002/keylock"
)

func newTestRecord(t *testing.T) (*Record, string, *keylock.Manager) {
	t.Helper()
	root := t.TempDir()
	locks, err := keylock.NewManager(root)
	require.NoError(t, err)
	rec, err := Create(root, locks, "conv-1", "user-1", "assistant", false)
	require.NoError(t, err)
	return rec, root, locks
}

func TestCreateAndOpen(t *testing.T) {
	rec, root, locks := newTestRecord(t)
	assert.Equal(t, "conv-1", rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	reopened, err := Open(root, locks, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, reopened.ID)
	assert.Equal(t, rec.UserID, reopened.UserID)
	assert.Equal(t, rec.Domain, reopened.Domain)
}

func TestOpenMissingRecord(t *testing.T) {
	root := t.TempDir()
	locks, err := keylock.NewManager(root)
	require.NoError(t, err)
	_, err = Open(root, locks, "nope")
	require.Error(t, err)
}

func TestOpenCorruptRecord(t *testing.T) {
	rec, root, locks := newTestRecord(t)
	require.NoError(t, os.WriteFile(filepath.Join(rec.Dir(), "record.json"), []byte("{broken"), 0o644))

	_, err := Open(root, locks, "conv-1")
	var corrupt *CorruptRecordError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, "conv-1", corrupt.ID)

	// The designated recovery: delete the whole subtree.
	require.NoError(t, os.RemoveAll(DirFor(root, "conv-1")))
	_, err = os.Stat(DirFor(root, "conv-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestAppendAndReadMessages(t *testing.T) {
	rec, _, _ := newTestRecord(t)
	ctx := context.Background()

	u := core.NewMessage("question", core.SenderUser, "user-1", rec.ID)
	m := core.NewMessage("answer", core.SenderModel, "user-1", rec.ID)
	require.NoError(t, rec.AppendMessages(ctx, u, m))

	msgs, err := rec.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.SenderUser, msgs[0].Sender)
	assert.Equal(t, core.SenderModel, msgs[1].Sender)
}

func TestVisibleMessagesHidesAndBounds(t *testing.T) {
	rec, _, _ := newTestRecord(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		u := core.NewMessage("q"+string(rune('0'+i)), core.SenderUser, "user-1", rec.ID)
		m := core.NewMessage("a"+string(rune('0'+i)), core.SenderModel, "user-1", rec.ID)
		if i == 2 {
			u.Visibility = core.VisibilityHide
			m.Visibility = core.VisibilityHide
		}
		require.NoError(t, rec.AppendMessages(ctx, u, m))
	}

	all, err := rec.Messages(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 10) // hidden pairs stay persisted

	visible, err := rec.VisibleMessages(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, visible, 8)

	bounded, err := rec.VisibleMessages(ctx, 2)
	require.NoError(t, err)
	require.Len(t, bounded, 4)
	assert.Equal(t, "q3", bounded[0].Text)
}

func TestMemoryRoundTrip(t *testing.T) {
	rec, _, _ := newTestRecord(t)
	ctx := context.Background()

	mem, err := rec.Memory(ctx)
	require.NoError(t, err)
	assert.Empty(t, mem.Title)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, rec.SetMemory(ctx, Memory{
		Title:          "Raft deep dive",
		LastUpdated:    now,
		RunningSummary: []string{"intro"},
		TitleForceSet:  true,
	}))

	mem, err = rec.Memory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Raft deep dive", mem.Title)
	assert.Equal(t, []string{"intro"}, mem.RunningSummary)
	assert.True(t, mem.TitleForceSet)
	assert.True(t, mem.LastUpdated.Equal(now))
}

func TestTouchMemoryComposesWithOtherKeys(t *testing.T) {
	rec, _, _ := newTestRecord(t)
	ctx := context.Background()

	require.NoError(t, rec.SetMemory(ctx, Memory{Title: "kept", RunningSummary: []string{"s1"}}))
	require.NoError(t, rec.TouchMemory(ctx))

	mem, err := rec.Memory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kept", mem.Title)
	assert.Equal(t, []string{"s1"}, mem.RunningSummary)
	assert.False(t, mem.LastUpdated.IsZero())
}

func TestUpdateMemorySplice(t *testing.T) {
	rec, _, _ := newTestRecord(t)
	ctx := context.Background()

	require.NoError(t, rec.SetMemory(ctx, Memory{RunningSummary: []string{"first", "third"}}))
	require.NoError(t, rec.UpdateMemory(ctx, func(m *Memory) {
		rs := m.RunningSummary
		m.RunningSummary = append(append(append([]string{}, rs[:1]...), "second"), rs[1:]...)
	}))

	mem, err := rec.Memory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, mem.RunningSummary)
}

func TestUploadedDocsDedupeAndRemove(t *testing.T) {
	rec, _, _ := newTestRecord(t)
	ctx := context.Background()

	d1 := core.UploadedDoc{DocID: "d1", StoragePath: "/tmp/a.pdf"}
	d2 := core.UploadedDoc{DocID: "d2", StoragePath: "/tmp/b.pdf"}
	require.NoError(t, rec.AddUploadedDoc(ctx, d1))
	require.NoError(t, rec.AddUploadedDoc(ctx, d2))
	// Same id again keeps the first entry.
	require.NoError(t, rec.AddUploadedDoc(ctx, core.UploadedDoc{DocID: "d1", StoragePath: "/tmp/other.pdf"}))

	docs, err := rec.UploadedDocs(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "/tmp/a.pdf", docs[0].StoragePath)

	require.NoError(t, rec.RemoveUploadedDoc(ctx, "d1"))
	docs, err = rec.UploadedDocs(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d2", docs[0].DocID)
}

func TestCloneIsIndependent(t *testing.T) {
	rec, root, locks := newTestRecord(t)
	ctx := context.Background()

	u := core.NewMessage("q", core.SenderUser, "user-1", rec.ID)
	m := core.NewMessage("a", core.SenderModel, "user-1", rec.ID)
	require.NoError(t, rec.AppendMessages(ctx, u, m))

	clone, err := rec.CloneInto(root, "conv-2", locks)
	require.NoError(t, err)

	msgs, err := clone.Messages(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	// Writes to the clone never reach the original.
	u2 := core.NewMessage("q2", core.SenderUser, "user-1", clone.ID)
	m2 := core.NewMessage("a2", core.SenderModel, "user-1", clone.ID)
	require.NoError(t, clone.AppendMessages(ctx, u2, m2))

	origMsgs, err := rec.Messages(ctx)
	require.NoError(t, err)
	assert.Len(t, origMsgs, 2)
}

func TestDeleteRemovesSubtree(t *testing.T) {
	rec, root, _ := newTestRecord(t)
	require.NoError(t, rec.Delete())
	_, err := os.Stat(DirFor(root, rec.ID))
	assert.True(t, os.IsNotExist(err))
}
