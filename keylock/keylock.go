package keylock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/faizanahemad/science-reader-sub002/logging"
)

// DefaultTimeout bounds how long Acquire waits before surfacing contention.
var DefaultTimeout = 600 * time.Second

// ErrContention is the sentinel wrapped by ContentionError. Callers treat it
// as retryable and distinct from data errors.
var ErrContention = errors.New("lock contention")

// ContentionError reports that a lock could not be acquired within its timeout.
type ContentionError struct {
	Key     string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *ContentionError) Error() string {
	return fmt.Sprintf("lock contention on %q after %s", e.Key, e.Timeout)
}

// Unwrap lets errors.Is(err, ErrContention) succeed.
func (e *ContentionError) Unwrap() error { return ErrContention }

// Key identifies one lockable resource. Granularity is per conversation field:
// coarser would serialize unrelated fields, per-record would be insufficient
// because concurrent turns may touch disjoint fields.
type Key struct {
	ConversationID string
	Field          string
}

// String renders the key in the form used for lock file names.
func (k Key) String() string { return k.ConversationID + "." + k.Field }

// Guard represents a held lock. Release is idempotent and must run on every
// exit path; callers defer it immediately after a successful Acquire.
type Guard struct {
	key     Key
	mgr     *Manager
	fileLck *flock.Flock
	once    sync.Once
}

// Key returns the key this guard holds.
func (g *Guard) Key() Key { return g.key }

// Release frees the file lock and the in-process slot. Safe to call more
// than once.
func (g *Guard) Release() {
	g.once.Do(func() {
		if g.fileLck != nil {
			if err := g.fileLck.Unlock(); err != nil {
				g.mgr.logger.Warn("failed to unlock lock file for %s: %v", g.key, err)
			}
		}
		g.mgr.release(g.key)
	})
}

// Options configure a Manager.
type Options struct {
	// Timeout is the default acquisition timeout (DefaultTimeout if zero).
	Timeout time.Duration
	// Logger receives contention and release diagnostics.
	Logger logging.Logger
}

// Manager hands out keyed guards. It owns one lock file per key under
// <root>/locks/ plus an in-process waiter slot per key so that threads of the
// same process do not fight over the file lock.
type Manager struct {
	root    string
	timeout time.Duration
	logger  logging.Logger

	mu    sync.Mutex
	slots map[string]*slot
}

// slot serializes in-process holders of one key. The buffered channel holds a
// single token; owning the token means owning the key locally.
type slot struct {
	token chan struct{}
	refs  int
}

// NewManager creates a Manager rooted at the given storage directory. The
// locks/ subtree is created eagerly so concurrent first acquisitions do not
// race on MkdirAll.
func NewManager(root string, optFns ...func(o *Options)) (*Manager, error) {
	opts := Options{Timeout: DefaultTimeout, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if err := os.MkdirAll(filepath.Join(root, "locks"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create locks dir: %w", err)
	}
	return &Manager{
		root:    root,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		slots:   make(map[string]*slot),
	}, nil
}

// Timeout returns the manager's default acquisition timeout.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Acquire obtains the guard for key, waiting up to timeout (the manager
// default when timeout <= 0). A ContentionError is returned on expiry; it is
// never silently swallowed.
func (m *Manager) Acquire(ctx context.Context, key Key, timeout time.Duration) (*Guard, error) {
	if timeout <= 0 {
		timeout = m.timeout
	}
	deadline := time.Now().Add(timeout)

	s := m.checkout(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.token:
		// local slot owned, fall through to the file lock
	case <-timer.C:
		m.checkin(key)
		return nil, &ContentionError{Key: key.String(), Timeout: timeout}
	case <-ctx.Done():
		m.checkin(key)
		return nil, ctx.Err()
	}

	fl := flock.New(m.lockPath(key))
	lockCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, 25*time.Millisecond)
	if err != nil || !locked {
		s.token <- struct{}{}
		m.checkin(key)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed to acquire lock file for %s: %w", key, err)
		}
		return nil, &ContentionError{Key: key.String(), Timeout: timeout}
	}

	return &Guard{key: key, mgr: m, fileLck: fl}, nil
}

// lockPath returns the lock file path for a key.
func (m *Manager) lockPath(key Key) string {
	return filepath.Join(m.root, "locks", key.String()+".lock")
}

// checkout returns the slot for key, creating it on first use and bumping the
// reference count so release can garbage collect idle slots.
func (m *Manager) checkout(key Key) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key.String()]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		s.token <- struct{}{}
		m.slots[key.String()] = s
	}
	s.refs++
	return s
}

// checkin drops one reference without freeing the token (used on failed
// acquisitions).
func (m *Manager) checkin(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key.String()]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(m.slots, key.String())
	}
}

// release frees the local token then drops the holder's reference.
func (m *Manager) release(key Key) {
	m.mu.Lock()
	s, ok := m.slots[key.String()]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.token <- struct{}{}
	m.checkin(key)
}
