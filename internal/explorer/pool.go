package explorer

import (
	"context"
	"sync"
)

// Pool bounds the number of concurrently running tasks. At most Size calls
// are outstanding at once, which also serves as the primary rate control
// toward the external providers.
type Pool struct {
	size    int
	results chan Result

	mu       sync.Mutex
	inflight int
}

// NewPool creates a pool of the given size (minimum 1).
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:    size,
		results: make(chan Result, size),
	}
}

// Available returns the number of free worker slots.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size - p.inflight
}

// Dispatch runs the task on the worker in a new goroutine. It returns
// false without starting anything if the pool is full. The result arrives
// on Results; cancellation of ctx propagates into the task's suspension
// points (webhook wait, download, transcription, LM request).
func (p *Pool) Dispatch(ctx context.Context, w *Worker, task Task) bool {
	p.mu.Lock()
	if p.inflight >= p.size {
		p.mu.Unlock()
		return false
	}
	p.inflight++
	p.mu.Unlock()

	go func() {
		res := w.Explore(ctx, task)

		p.mu.Lock()
		p.inflight--
		p.mu.Unlock()

		p.results <- res
	}()
	return true
}

// Results delivers finished tasks. The channel is buffered to pool size so
// a finishing worker never blocks on a slow consumer for long.
func (p *Pool) Results() <-chan Result {
	return p.results
}
