package engine

import "context"

// workerPool bounds concurrent source fetches with a counting semaphore.
type workerPool struct {
	sem chan struct{}
}

func newWorkerPool(size int) *workerPool {
	if size < 1 {
		size = 1
	}
	return &workerPool{sem: make(chan struct{}, size)}
}

// Submit runs fn on its own goroutine once a slot is free. It blocks only
// for slot acquisition and gives up when ctx is done.
func (p *workerPool) Submit(ctx context.Context, fn func()) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.sem <- struct{}{}:
	}
	go func() {
		defer func() { <-p.sem }()
		fn()
	}()
	return nil
}
