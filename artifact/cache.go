package artifact

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/faizanahemad/science-reader-sub002/logging"
)

// Factory produces the artifact bytes when the cache misses (the actual
// synthesis or rendering call).
type Factory func(ctx context.Context) ([]byte, error)

// Options configure a Cache.
type Options struct {
	// Logger receives cache hit/compute diagnostics.
	Logger logging.Logger
}

// Cache provides at-most-once-compute access to derived artifacts.
// Concurrent callers requesting the same fingerprint are collapsed onto a
// single in-flight factory invocation via singleflight.
type Cache struct {
	store  Store
	group  singleflight.Group
	logger logging.Logger
}

// NewCache creates a cache over the given store.
func NewCache(store Store, optFns ...func(o *Options)) *Cache {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Cache{store: store, logger: opts.Logger}
}

// GetOrCreate returns the artifact path for fingerprint, invoking factory
// and persisting its output on a miss. An existing artifact is returned
// unconditionally unless recompute is set; there is no TTL.
func (c *Cache) GetOrCreate(ctx context.Context, fingerprint string, recompute bool, factory Factory) (string, error) {
	if !recompute {
		exists, err := c.store.Exists(fingerprint)
		if err != nil {
			return "", fmt.Errorf("artifact existence check failed: %w", err)
		}
		if exists {
			c.logger.Debug("artifact cache hit fingerprint=%s", fingerprint)
			return c.store.Path(fingerprint), nil
		}
	}

	path, err, _ := c.group.Do(fingerprint, func() (any, error) {
		// A waiter that queued behind the winning flight must not recompute.
		if !recompute {
			exists, err := c.store.Exists(fingerprint)
			if err != nil {
				return "", err
			}
			if exists {
				return c.store.Path(fingerprint), nil
			}
		}
		data, err := factory(ctx)
		if err != nil {
			return "", fmt.Errorf("artifact factory failed: %w", err)
		}
		return c.store.Save(fingerprint, data)
	})
	if err != nil {
		return "", err
	}
	return path.(string), nil
}

// Get returns the stored artifact bytes or ErrNotFound.
func (c *Cache) Get(fingerprint string) ([]byte, error) {
	return c.store.Get(fingerprint)
}
