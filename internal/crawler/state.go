package crawler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// stringSet is a mutex-guarded set of strings.
type stringSet struct {
	mu    sync.Mutex
	items map[string]struct{}
}

func newStringSet() *stringSet {
	return &stringSet{items: make(map[string]struct{})}
}

// add inserts v and reports whether it was absent.
func (s *stringSet) add(v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[v]; ok {
		return false
	}
	s.items[v] = struct{}{}
	return true
}

// sorted returns the members in ascending order.
func (s *stringSet) sorted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.items))
	for v := range s.items {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// layer is the per-depth scope shared by the tasks of one breadth-first step.
type layer struct {
	depth   int
	barrier *layerBarrier

	mu   sync.Mutex
	next []string
}

func newLayer(depth int) *layer {
	return &layer{depth: depth, barrier: newLayerBarrier()}
}

// discover appends a URL to the next layer.
func (l *layer) discover(rawURL string) {
	l.mu.Lock()
	l.next = append(l.next, rawURL)
	l.mu.Unlock()
}

// nextLayer returns the URLs discovered in this layer. It must only be called
// after the barrier wait returned.
func (l *layer) nextLayer() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}

// crawlState is owned by a single Crawl call and handed to every task it
// spawns. Nothing in it outlives the call or is shared with another call.
type crawlState struct {
	ctx context.Context

	// allowed is the host allow-list; nil means unrestricted.
	allowed map[string]struct{}

	visited    *stringSet
	downloaded *stringSet
	hosts      *hostRegistry

	errMu    sync.Mutex
	failures map[string]error

	// abandoned is set when a task was dropped by a closed pool.
	abandoned atomic.Bool
}

func newCrawlState(ctx context.Context, allowed []string, hosts *hostRegistry) *crawlState {
	st := &crawlState{
		ctx:        ctx,
		visited:    newStringSet(),
		downloaded: newStringSet(),
		hosts:      hosts,
		failures:   make(map[string]error),
	}
	if allowed != nil {
		st.allowed = make(map[string]struct{}, len(allowed))
		for _, h := range allowed {
			st.allowed[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
		}
	}
	return st
}

// allows reports whether host passes the allow-list.
func (st *crawlState) allows(host string) bool {
	if st.allowed == nil {
		return true
	}
	_, ok := st.allowed[host]
	return ok
}

// recordError stores err under its URL unless a failure is already recorded.
func (st *crawlState) recordError(err *Error) {
	st.errMu.Lock()
	defer st.errMu.Unlock()

	if _, exists := st.failures[err.URL]; !exists {
		st.failures[err.URL] = err
	}
}

// result snapshots the collected state.
func (st *crawlState) result() *Result {
	st.errMu.Lock()
	errs := make(map[string]error, len(st.failures))
	for k, v := range st.failures {
		errs[k] = v
	}
	st.errMu.Unlock()

	return &Result{
		Downloaded: st.downloaded.sorted(),
		Errors:     errs,
	}
}
