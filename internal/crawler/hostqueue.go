package crawler

import "sync"

// hostQueue gates downloads for one host.
//
// running counts tasks handed to the download pool and not yet released;
// it never exceeds limit. A task is either counted in running or waiting in
// pending, never both. Submission to the pool happens after the lock is
// dropped, because a closed pool runs the task inline and the task's release
// takes the same lock.
type hostQueue struct {
	host  string
	limit int
	pool  *workerPool

	mu      sync.Mutex
	running int
	pending []task
}

// admit runs t now if the host has a free slot, otherwise queues it.
func (q *hostQueue) admit(t task) {
	q.mu.Lock()
	if q.running >= q.limit {
		q.pending = append(q.pending, t)
		q.mu.Unlock()
		return
	}
	q.running++
	q.mu.Unlock()

	q.pool.Submit(t)
}

// release is called once by every admitted task when its download is over.
// The slot passes straight to the next queued task, which goes to the
// download pool like any other download; otherwise the slot is freed.
func (q *hostQueue) release() {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.running--
		q.mu.Unlock()
		return
	}
	next := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.mu.Unlock()

	q.pool.Submit(next)
}

// hostRegistry maps hostnames to their queues.
// Its lock only guards get-or-create; queue state has per-host locks so
// hosts never contend with each other.
type hostRegistry struct {
	limit int
	pool  *workerPool

	mu     sync.Mutex
	queues map[string]*hostQueue
}

func newHostRegistry(limit int, pool *workerPool) *hostRegistry {
	return &hostRegistry{
		limit:  limit,
		pool:   pool,
		queues: make(map[string]*hostQueue),
	}
}

// get returns the queue for host, creating it on first use.
func (r *hostRegistry) get(host string) *hostQueue {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[host]
	if !ok {
		q = &hostQueue{host: host, limit: r.limit, pool: r.pool}
		r.queues[host] = q
	}
	return q
}
