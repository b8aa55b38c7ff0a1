package crawler

import "sync/atomic"

// layerBarrier lets the coordinator wait for every task spawned for one
// breadth-first layer, including tasks spawned by other tasks while the
// coordinator is already waiting.
//
// The barrier starts with one unit held by the coordinator. Each task is
// registered before it is submitted and arrives exactly once when it ends.
// wait releases the coordinator's unit and blocks until the count is zero.
//
// register must only be called while at least one unit is live: the
// coordinator registers before wait, and a task registers its children
// before it arrives itself. Under that rule the count cannot touch zero
// while work is still being spawned.
type layerBarrier struct {
	pending atomic.Int64
	done    chan struct{}
}

func newLayerBarrier() *layerBarrier {
	b := &layerBarrier{done: make(chan struct{})}
	b.pending.Store(1)
	return b
}

// register adds one unit of pending work.
func (b *layerBarrier) register() {
	if b.pending.Add(1) <= 1 {
		panic("crawler: barrier registration after the layer completed")
	}
}

// arrive removes one unit and wakes the waiter when none remain.
func (b *layerBarrier) arrive() {
	n := b.pending.Add(-1)
	switch {
	case n == 0:
		close(b.done)
	case n < 0:
		panic("crawler: barrier arrival without registration")
	}
}

// wait arrives for the coordinator's own unit and blocks until every
// registered task has arrived.
func (b *layerBarrier) wait() {
	b.arrive()
	<-b.done
}
