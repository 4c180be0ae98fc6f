package artifact

import (
	"os"
	"path/filepath"
	"sync"
)

// Store is the persistence backend for artifact bytes keyed by fingerprint.
// Implementations must be thread-safe.
type Store interface {
	Exists(fingerprint string) (bool, error)
	Save(fingerprint string, data []byte) (string, error)
	Get(fingerprint string) ([]byte, error)
	Path(fingerprint string) string
}

// FSStore persists artifacts under root/<prefix>/<fingerprint>, sharding by
// the first two fingerprint characters to keep directories small.
type FSStore struct {
	root string
}

// NewFSStore returns a filesystem-backed store rooted at root.
func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

// Path returns the artifact path for a fingerprint (whether or not it exists).
func (s *FSStore) Path(fingerprint string) string {
	shard := "00"
	if len(fingerprint) >= 2 {
		shard = fingerprint[:2]
	}
	return filepath.Join(s.root, shard, fingerprint)
}

// Exists reports whether the artifact file is present.
func (s *FSStore) Exists(fingerprint string) (bool, error) {
	_, err := os.Stat(s.Path(fingerprint))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Save writes the artifact bytes and returns the final path. The write is
// staged through a temp file so concurrent readers never see partial output.
func (s *FSStore) Save(fingerprint string, data []byte) (string, error) {
	path := s.Path(fingerprint)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

// Get returns the stored bytes or ErrNotFound.
func (s *FSStore) Get(fingerprint string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(fingerprint))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// InMemoryStore is a trivial in-process Store useful for tests and
// single-process prototypes. Data is copied on save / retrieval to avoid
// accidental external mutation of internal buffers.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string][]byte)}
}

// Path returns a synthetic identifier for the fingerprint.
func (s *InMemoryStore) Path(fingerprint string) string { return "mem://" + fingerprint }

// Exists reports whether bytes are stored for the fingerprint.
func (s *InMemoryStore) Exists(fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.artifacts[fingerprint]
	return ok, nil
}

// Save stores (or overwrites) the artifact bytes. The input slice is copied.
func (s *InMemoryStore) Save(fingerprint string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.artifacts[fingerprint] = cp
	return s.Path(fingerprint), nil
}

// Get returns a copy of the stored bytes or ErrNotFound.
func (s *InMemoryStore) Get(fingerprint string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.artifacts[fingerprint]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
