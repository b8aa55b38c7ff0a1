package crawler

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// task is a unit of work run by a workerPool.
// The context is the pool's; it is cancelled once the pool is closed, and a
// task invoked with a cancelled context must only run its cleanup path.
type task func(ctx context.Context)

// workerPool runs tasks with at most size of them in flight.
//
// Submit never blocks: tasks beyond the limit wait in an unbounded FIFO
// backlog. Download tasks re-submit into their own pool when a host slot
// frees up, so a bounded queue could deadlock with every worker blocked on
// Submit. The semaphore counts live workers; a worker keeps pulling from the
// backlog until it is empty and only then gives its slot back, under the same
// lock Submit uses, so a task can never be stranded in the backlog.
type workerPool struct {
	name string
	sem  *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	backlog []task
	closed  bool
}

// newWorkerPool creates a pool running at most size tasks concurrently.
func newWorkerPool(name string, size int) (*workerPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s pool size %d", ErrInvalidPoolSize, name, size)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &workerPool{
		name:   name,
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Submit schedules t. After Close, t is invoked synchronously with the
// cancelled pool context so that it can release what it holds.
func (p *workerPool) Submit(t task) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		t(p.ctx)
		return
	}

	p.backlog = append(p.backlog, t)
	spawn := p.sem.TryAcquire(1)
	p.mu.Unlock()

	if spawn {
		go p.work()
	}
}

// work drains the backlog in FIFO order until it is empty.
func (p *workerPool) work() {
	for {
		p.mu.Lock()
		if p.closed || len(p.backlog) == 0 {
			p.sem.Release(1)
			p.mu.Unlock()
			return
		}
		t := p.backlog[0]
		p.backlog[0] = nil
		p.backlog = p.backlog[1:]
		p.mu.Unlock()

		t(p.ctx)
	}
}

// Close stops the pool. Tasks still in the backlog are abandoned: each is
// invoked once with the cancelled context on the caller's goroutine. Running
// tasks observe the cancellation through their context; Close does not wait
// for them.
func (p *workerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	abandoned := p.backlog
	p.backlog = nil
	p.mu.Unlock()

	p.cancel()
	for _, t := range abandoned {
		t(p.ctx)
	}
}
