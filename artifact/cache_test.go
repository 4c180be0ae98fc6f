package artifact

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*FSStore)(nil)
	_ Store = (*InMemoryStore)(nil)
)

func TestFingerprintVariantOrderIrrelevant(t *testing.T) {
	a := Fingerprint("msg-1", "short", "podcast")
	b := Fingerprint("msg-1", "podcast", "short")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Fingerprint("msg-1", "short"))
	assert.NotEqual(t, a, Fingerprint("msg-2", "short", "podcast"))
}

func TestGetOrCreateComputesOnce(t *testing.T) {
	cache := NewCache(NewInMemoryStore())
	var calls atomic.Int32
	factory := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("rendered"), nil
	}

	fp := Fingerprint("msg-1", "diagram")
	for i := 0; i < 3; i++ {
		path, err := cache.GetOrCreate(context.Background(), fp, false, factory)
		require.NoError(t, err)
		assert.Equal(t, "mem://"+fp, path)
	}
	assert.Equal(t, int32(1), calls.Load())

	data, err := cache.Get(fp)
	require.NoError(t, err)
	assert.Equal(t, []byte("rendered"), data)
}

func TestGetOrCreateRecompute(t *testing.T) {
	cache := NewCache(NewInMemoryStore())
	var calls atomic.Int32
	factory := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("v"), nil
	}

	fp := Fingerprint("msg-1")
	_, err := cache.GetOrCreate(context.Background(), fp, false, factory)
	require.NoError(t, err)
	_, err = cache.GetOrCreate(context.Background(), fp, true, factory)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrCreateConcurrentDedup(t *testing.T) {
	cache := NewCache(NewInMemoryStore())
	var calls atomic.Int32
	release := make(chan struct{})
	factory := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("x"), nil
	}

	fp := Fingerprint("msg-1", "audio")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetOrCreate(context.Background(), fp, false, factory)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	// Give the callers time to pile onto the in-flight computation.
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestFactoryErrorPropagates(t *testing.T) {
	cache := NewCache(NewInMemoryStore())
	boom := errors.New("render failed")
	_, err := cache.GetOrCreate(context.Background(), Fingerprint("m"), false, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	cache := NewCache(NewInMemoryStore())
	_, err := cache.Get(Fingerprint("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreRoundTrip(t *testing.T) {
	store := NewFSStore(t.TempDir())
	fp := Fingerprint("msg-1", "diagram")

	exists, err := store.Exists(fp)
	require.NoError(t, err)
	assert.False(t, exists)

	path, err := store.Save(fp, []byte("png bytes"))
	require.NoError(t, err)
	assert.Equal(t, store.Path(fp), path)

	exists, err = store.Exists(fp)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.Get(fp)
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), data)

	_, err = store.Get(Fingerprint("other"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStoreCopies(t *testing.T) {
	store := NewInMemoryStore()
	fp := Fingerprint("msg-1")
	in := []byte("abc")
	_, err := store.Save(fp, in)
	require.NoError(t, err)

	in[0] = 'z' // caller mutations must not reach the store
	out, err := store.Get(fp)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
}
