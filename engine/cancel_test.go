package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelRegistry(t *testing.T) {
	r := newCancelRegistry()
	assert.False(t, r.Requested("c1"))

	r.Request("c1")
	assert.True(t, r.Requested("c1"))
	assert.False(t, r.Requested("c2"))

	r.Clear("c1")
	assert.False(t, r.Requested("c1"))

	// Clearing an unknown conversation is a no-op.
	r.Clear("never-seen")
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	p := newWorkerPool(2)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestWorkerPoolSubmitGivesUpOnContext(t *testing.T) {
	p := newWorkerPool(1)
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Submit(ctx, func() { t.Error("must not run") })
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}
