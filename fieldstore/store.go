package fieldstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/faizanahemad/science-reader-sub002/keylock"
	"github.com/faizanahemad/science-reader-sub002/logging"
)

func init() {
	// Common interface payloads that may appear inside data fields.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register(time.Time{})
	gob.Register("")
	gob.Register(0)
	gob.Register(0.0)
	gob.Register(false)
}

// Kind classifies a field's on-disk representation.
type Kind int

const (
	// KindData fields keep both the JSON fast path and the gob exact
	// representation.
	KindData Kind = iota
	// KindBlob fields are opaque and only get the exact representation.
	KindBlob
)

// Definition registers one field with its concrete value type. Prototype
// must return a pointer to a zero value of that type; loads decode into it
// so cached values keep their concrete Go types across restarts.
type Definition struct {
	Name      string
	Kind      Kind
	Prototype func() any
}

// Options configure a Store.
type Options struct {
	// LockTimeout bounds per-field lock acquisition (manager default if zero).
	LockTimeout time.Duration
	// Logger receives load/corruption diagnostics.
	Logger logging.Logger
}

// Store is the durable field store for one conversation directory. All
// mutations run under the matching keyed lock; no other writer may touch the
// directory without acquiring the same lock.
type Store struct {
	dir            string
	conversationID string
	locks          *keylock.Manager
	lockTimeout    time.Duration
	defs           map[string]Definition
	cache          *valueCache
	logger         logging.Logger
}

// New creates a Store over dir for the given conversation, registering the
// provided field definitions. The directory is created if absent.
func New(dir, conversationID string, locks *keylock.Manager, defs []Definition, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create field dir: %w", err)
	}
	m := make(map[string]Definition, len(defs))
	for _, d := range defs {
		if d.Name == "" || d.Prototype == nil {
			return nil, fmt.Errorf("field definition %q must carry a name and prototype", d.Name)
		}
		m[d.Name] = d
	}
	return &Store{
		dir:            dir,
		conversationID: conversationID,
		locks:          locks,
		lockTimeout:    opts.LockTimeout,
		defs:           m,
		cache:          newValueCache(),
		logger:         opts.Logger,
	}, nil
}

// Dir returns the store's storage directory.
func (s *Store) Dir() string { return s.dir }

// Fields returns the registered field names.
func (s *Store) Fields() []string {
	names := make([]string, 0, len(s.defs))
	for n := range s.defs {
		names = append(names, n)
	}
	return names
}

// Get returns the field value or nil when absent. The first call loads from
// durable storage (fast path first, exact representation as fallback) and
// populates the cache; later calls never re-touch storage until a write
// invalidates the entry.
func (s *Store) Get(ctx context.Context, field string) (any, error) {
	def, ok := s.defs[field]
	if !ok {
		return nil, &InvalidFieldError{Field: field}
	}
	if v, ok := s.cache.get(field); ok {
		return v, nil
	}

	// Loading races with writers on the same field, so the lazy load itself
	// runs under the field lock to rule out torn reads.
	guard, err := s.locks.Acquire(ctx, s.lockKey(field), s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	v := s.loadLocked(def)
	s.cache.put(field, v)
	return v, nil
}

// AppendOrMerge merges value into the field under its lock: dict union with
// shallow override, sequence append, string concatenation. An absent current
// value is simply replaced.
func (s *Store) AppendOrMerge(ctx context.Context, field string, value any) error {
	return s.set(ctx, field, value, false)
}

// Overwrite replaces the field value under its lock, bypassing merge.
func (s *Store) Overwrite(ctx context.Context, field string, value any) error {
	return s.set(ctx, field, value, true)
}

// Update applies fn to the current value and persists the result, all under
// a single hold of the field lock. Used for splice-style mutations that a
// blind merge cannot express (e.g. insert-at-index).
func (s *Store) Update(ctx context.Context, field string, fn func(current any) (any, error)) error {
	def, ok := s.defs[field]
	if !ok {
		return &InvalidFieldError{Field: field}
	}

	guard, err := s.locks.Acquire(ctx, s.lockKey(field), s.lockTimeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	current, ok := s.cache.get(field)
	if !ok {
		current = s.loadLocked(def)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if err := s.persistLocked(def, next); err != nil {
		s.cache.invalidate(field)
		return err
	}
	s.cache.put(field, next)
	return nil
}

func (s *Store) set(ctx context.Context, field string, value any, overwrite bool) error {
	def, ok := s.defs[field]
	if !ok {
		return &InvalidFieldError{Field: field}
	}

	guard, err := s.locks.Acquire(ctx, s.lockKey(field), s.lockTimeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	next := value
	if !overwrite {
		current, ok := s.cache.get(field)
		if !ok {
			current = s.loadLocked(def)
		}
		next, err = mergeValues(field, current, value)
		if err != nil {
			return err
		}
	}

	if err := s.persistLocked(def, next); err != nil {
		s.cache.invalidate(field)
		return err
	}
	s.cache.put(field, next)
	return nil
}

// lockKey maps a field to its keyed lock identity.
func (s *Store) lockKey(field string) keylock.Key {
	return keylock.Key{ConversationID: s.conversationID, Field: field}
}

// loadLocked reads the field from disk, caller holds the field lock. Fast
// path JSON is consulted first for data fields; a miss or parse failure
// falls back to the exact gob snapshot, which on success is written back to
// the fast path for next time. Corruption on both paths degrades to absent.
func (s *Store) loadLocked(def Definition) any {
	if def.Kind == KindData {
		if v, err := s.readJSON(def); err == nil {
			return v
		} else if !os.IsNotExist(err) {
			s.logger.Warn("fast path read failed for %s.%s: %v", s.conversationID, def.Name, err)
		}
	}

	v, err := s.readGob(def)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("exact representation read failed for %s.%s, treating as absent: %v", s.conversationID, def.Name, err)
		}
		return nil
	}

	if def.Kind == KindData {
		if err := s.writeJSON(def, v); err != nil {
			s.logger.Warn("fast path write-back failed for %s.%s: %v", s.conversationID, def.Name, err)
		}
	}
	return v
}

// persistLocked writes the exact representation and, for data fields, the
// fast path. The exact write is authoritative; a fast path failure is logged
// and tolerated.
func (s *Store) persistLocked(def Definition, v any) error {
	if err := s.writeGob(def, v); err != nil {
		return fmt.Errorf("failed to persist %s: %w", def.Name, err)
	}
	if def.Kind == KindData {
		if err := s.writeJSON(def, v); err != nil {
			s.logger.Warn("fast path write failed for %s.%s: %v", s.conversationID, def.Name, err)
		}
	}
	return nil
}

func (s *Store) jsonPath(field string) string { return filepath.Join(s.dir, field+".json") }
func (s *Store) gobPath(field string) string  { return filepath.Join(s.dir, field+".gob") }

func (s *Store) readJSON(def Definition) (any, error) {
	data, err := os.ReadFile(s.jsonPath(def.Name))
	if err != nil {
		return nil, err
	}
	ptr := def.Prototype()
	if err := json.Unmarshal(data, ptr); err != nil {
		return nil, err
	}
	return reflect.ValueOf(ptr).Elem().Interface(), nil
}

func (s *Store) readGob(def Definition) (any, error) {
	data, err := os.ReadFile(s.gobPath(def.Name))
	if err != nil {
		return nil, err
	}
	ptr := def.Prototype()
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(ptr); err != nil {
		return nil, err
	}
	return reflect.ValueOf(ptr).Elem().Interface(), nil
}

func (s *Store) writeJSON(def Definition, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(s.jsonPath(def.Name), data)
}

func (s *Store) writeGob(def Definition, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).EncodeValue(reflect.ValueOf(v)); err != nil {
		return err
	}
	return atomicWrite(s.gobPath(def.Name), buf.Bytes())
}

// atomicWrite lands data via temp file + rename so readers never observe a
// torn snapshot.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
