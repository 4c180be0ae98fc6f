package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/faizanahemad/science-reader-sub002/core"
	"github.com/faizanahemad/science-reader-sub002/fieldstore"
	"github.com/faizanahemad/science-reader-sub002/keylock"
	"github.com/faizanahemad/science-reader-sub002/logging"
)

// Registered field names. The set is closed; FieldStore rejects anything else.
const (
	FieldMemory       = "memory"
	FieldMessages     = "messages"
	FieldUploadedDocs = "uploaded_documents"
)

// CorruptRecordError reports an unreadable top-level record file. The
// conversation is eligible for wholesale deletion when this surfaces.
type CorruptRecordError struct {
	ID   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("conversation %s record is corrupt at %s: %v", e.ID, e.Path, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *CorruptRecordError) Unwrap() error { return e.Err }

// Options configure record construction.
type Options struct {
	// LockTimeout bounds field lock acquisition (keylock default if zero).
	LockTimeout time.Duration
	// Logger receives storage diagnostics.
	Logger logging.Logger
}

// Record is the conversation aggregate.
type Record struct {
	ID        string
	UserID    string
	Domain    string
	Stateless bool
	CreatedAt time.Time
	UpdatedAt time.Time

	dir    string
	fields *fieldstore.Store
	locks  *keylock.Manager
	logger logging.Logger
}

// recordMeta is the persisted shape of the aggregate's own metadata.
type recordMeta struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Domain    string    `json:"domain"`
	Stateless bool      `json:"stateless"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const metaFile = "record.json"

// DirFor returns the storage directory for a conversation id under root.
func DirFor(root, id string) string {
	return filepath.Join(root, "conversations", id)
}

func fieldDefs() []fieldstore.Definition {
	return []fieldstore.Definition{
		{Name: FieldMemory, Kind: fieldstore.KindData, Prototype: func() any { return new(map[string]any) }},
		{Name: FieldMessages, Kind: fieldstore.KindData, Prototype: func() any { return new([]core.Message) }},
		{Name: FieldUploadedDocs, Kind: fieldstore.KindData, Prototype: func() any { return new([]core.UploadedDoc) }},
	}
}

// Create initializes a new conversation under root. Fields start empty and
// are populated progressively per turn.
func Create(root string, locks *keylock.Manager, id, userID, domain string, stateless bool, optFns ...func(o *Options)) (*Record, error) {
	opts := applyOptions(optFns)
	now := time.Now().UTC()
	r := &Record{
		ID:        id,
		UserID:    userID,
		Domain:    domain,
		Stateless: stateless,
		CreatedAt: now,
		UpdatedAt: now,
		dir:       DirFor(root, id),
		locks:     locks,
		logger:    opts.Logger,
	}
	fs, err := fieldstore.New(r.dir, id, locks, fieldDefs(), func(o *fieldstore.Options) {
		o.LockTimeout = opts.LockTimeout
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}
	r.fields = fs
	if err := r.writeMeta(); err != nil {
		return nil, err
	}
	return r, nil
}

// Open loads an existing conversation. A missing record file is an error; an
// unreadable one surfaces as CorruptRecordError so the caller can decide to
// delete the subtree.
func Open(root string, locks *keylock.Manager, id string, optFns ...func(o *Options)) (*Record, error) {
	opts := applyOptions(optFns)
	dir := DirFor(root, id)
	path := filepath.Join(dir, metaFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	var meta recordMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, &CorruptRecordError{ID: id, Path: path, Err: err}
	}
	r := &Record{
		ID:        meta.ID,
		UserID:    meta.UserID,
		Domain:    meta.Domain,
		Stateless: meta.Stateless,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		dir:       dir,
		locks:     locks,
		logger:    opts.Logger,
	}
	fs, err := fieldstore.New(dir, id, locks, fieldDefs(), func(o *fieldstore.Options) {
		o.LockTimeout = opts.LockTimeout
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}
	r.fields = fs
	return r, nil
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return opts
}

// Dir returns the record's storage directory.
func (r *Record) Dir() string { return r.dir }

// writeMeta persists the aggregate metadata.
func (r *Record) writeMeta() error {
	data, err := json.MarshalIndent(recordMeta{
		ID:        r.ID,
		UserID:    r.UserID,
		Domain:    r.Domain,
		Stateless: r.Stateless,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.dir, metaFile), data, 0o644)
}

// Touch bumps UpdatedAt and persists the metadata.
func (r *Record) Touch() error {
	r.UpdatedAt = time.Now().UTC()
	return r.writeMeta()
}

// Memory returns the typed memory view (zero value when absent).
func (r *Record) Memory(ctx context.Context) (Memory, error) {
	v, err := r.fields.Get(ctx, FieldMemory)
	if err != nil {
		return Memory{}, err
	}
	return memoryFromValue(v), nil
}

// SetMemory overwrites the memory field.
func (r *Record) SetMemory(ctx context.Context, m Memory) error {
	return r.fields.Overwrite(ctx, FieldMemory, m.toMap())
}

// MergeMemory merges a partial memory delta (shallow override on shared keys).
func (r *Record) MergeMemory(ctx context.Context, delta map[string]any) error {
	return r.fields.AppendOrMerge(ctx, FieldMemory, delta)
}

// TouchMemory bumps memory.lastUpdated, composing with concurrent writers
// through the merge policy.
func (r *Record) TouchMemory(ctx context.Context) error {
	return r.MergeMemory(ctx, map[string]any{memKeyLastUpdated: time.Now().UTC()})
}

// UpdateMemory applies fn to the memory under one lock hold. Needed for
// splice-style summary mutations where a blind merge would clobber the list.
func (r *Record) UpdateMemory(ctx context.Context, fn func(m *Memory)) error {
	return r.fields.Update(ctx, FieldMemory, func(current any) (any, error) {
		m := memoryFromValue(current)
		fn(&m)
		return m.toMap(), nil
	})
}

// Messages returns the ordered message sequence (nil when absent).
func (r *Record) Messages(ctx context.Context) ([]core.Message, error) {
	v, err := r.fields.Get(ctx, FieldMessages)
	if err != nil {
		return nil, err
	}
	msgs, _ := v.([]core.Message)
	return msgs, nil
}

// AppendMessages appends messages through the merge policy.
func (r *Record) AppendMessages(ctx context.Context, msgs ...core.Message) error {
	return r.fields.AppendOrMerge(ctx, FieldMessages, msgs)
}

// UpdateMessages applies fn to the sequence under one lock hold.
func (r *Record) UpdateMessages(ctx context.Context, fn func(msgs []core.Message) []core.Message) error {
	return r.fields.Update(ctx, FieldMessages, func(current any) (any, error) {
		msgs, _ := current.([]core.Message)
		return fn(msgs), nil
	})
}

// VisibleMessages returns shown messages, bounded to the last lookback pairs
// when lookback > 0. Hidden messages stay persisted but never reach the model.
func (r *Record) VisibleMessages(ctx context.Context, lookback int) ([]core.Message, error) {
	msgs, err := r.Messages(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Visibility != core.VisibilityHide {
			visible = append(visible, m)
		}
	}
	if lookback > 0 && len(visible) > lookback*2 {
		visible = visible[len(visible)-lookback*2:]
	}
	return visible, nil
}

// UploadedDocs returns the uploaded-document index.
func (r *Record) UploadedDocs(ctx context.Context) ([]core.UploadedDoc, error) {
	v, err := r.fields.Get(ctx, FieldUploadedDocs)
	if err != nil {
		return nil, err
	}
	docs, _ := v.([]core.UploadedDoc)
	return docs, nil
}

// AddUploadedDoc appends a document entry, deduplicated by doc id keeping
// the first occurrence.
func (r *Record) AddUploadedDoc(ctx context.Context, doc core.UploadedDoc) error {
	return r.fields.Update(ctx, FieldUploadedDocs, func(current any) (any, error) {
		docs, _ := current.([]core.UploadedDoc)
		for _, d := range docs {
			if d.DocID == doc.DocID {
				return docs, nil
			}
		}
		return append(docs, doc), nil
	})
}

// RemoveUploadedDoc deletes the entry with the given doc id. Other entries
// keep their relative order; index is not an identity.
func (r *Record) RemoveUploadedDoc(ctx context.Context, docID string) error {
	return r.fields.Update(ctx, FieldUploadedDocs, func(current any) (any, error) {
		docs, _ := current.([]core.UploadedDoc)
		out := docs[:0]
		for _, d := range docs {
			if d.DocID != docID {
				out = append(out, d)
			}
		}
		return out, nil
	})
}

// CloneInto copies the storage subtree and field values into a new id. The
// clone gets fresh locks (same manager, new keys) and an independent cache.
func (r *Record) CloneInto(root, newID string, locks *keylock.Manager, optFns ...func(o *Options)) (*Record, error) {
	clone, err := Create(root, locks, newID, r.UserID, r.Domain, r.Stateless, optFns...)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == metaFile {
			continue
		}
		if err := copyFile(filepath.Join(r.dir, e.Name()), filepath.Join(clone.dir, e.Name())); err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", e.Name(), err)
		}
	}
	return clone, nil
}

// Delete destroys the conversation by removing its entire storage subtree.
func (r *Record) Delete() error {
	return os.RemoveAll(r.dir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
