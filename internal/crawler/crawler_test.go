package crawler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/webcrawler/internal/urlutil"
)

// fakePage describes one page of a fakeWeb.
type fakePage struct {
	links      []string
	extractErr error
}

// fakeWeb is an in-memory Downloader. Unknown URLs fail to download.
// It records how many times each URL was fetched and the peak number of
// concurrent downloads per host.
type fakeWeb struct {
	pages map[string]fakePage
	delay time.Duration

	mu      sync.Mutex
	fetched map[string]int
	active  map[string]int
	peak    map[string]int
}

func newFakeWeb(pages map[string]fakePage) *fakeWeb {
	return &fakeWeb{
		pages:   pages,
		fetched: make(map[string]int),
		active:  make(map[string]int),
		peak:    make(map[string]int),
	}
}

type fakeDoc struct {
	page fakePage
}

func (d fakeDoc) ExtractLinks() ([]string, error) {
	if d.page.extractErr != nil {
		return nil, d.page.extractErr
	}
	return d.page.links, nil
}

var errNotFound = errors.New("not found")

func (w *fakeWeb) Download(ctx context.Context, rawURL string) (Document, error) {
	host, err := urlutil.HostOf(rawURL)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.fetched[rawURL]++
	w.active[host]++
	if w.active[host] > w.peak[host] {
		w.peak[host] = w.active[host]
	}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.active[host]--
		w.mu.Unlock()
	}()

	if w.delay > 0 {
		select {
		case <-time.After(w.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	page, ok := w.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rawURL, errNotFound)
	}
	return fakeDoc{page: page}, nil
}

func (w *fakeWeb) fetchCount(rawURL string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fetched[rawURL]
}

func (w *fakeWeb) maxFetchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := 0
	for _, n := range w.fetched {
		m = max(m, n)
	}
	return m
}

func (w *fakeWeb) peakFor(host string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peak[host]
}

// chainWeb returns a linear site a.example/0 -> /1 -> ... -> /n-1.
func chainWeb(n int) map[string]fakePage {
	pages := make(map[string]fakePage, n)
	for i := range n {
		var links []string
		if i+1 < n {
			links = []string{fmt.Sprintf("http://a.example/%d", i+1)}
		}
		pages[fmt.Sprintf("http://a.example/%d", i)] = fakePage{links: links}
	}
	return pages
}

func newTestCrawler(t *testing.T, d Downloader, opts ...Option) *WebCrawler {
	t.Helper()

	c, err := New(d, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew(t *testing.T) {
	t.Parallel()

	web := newFakeWeb(nil)

	tests := []struct {
		name    string
		d       Downloader
		opts    []Option
		wantErr error
	}{
		{name: "defaults", d: web},
		{name: "nil downloader", d: nil, wantErr: ErrNilDownloader},
		{name: "zero downloaders", d: web, opts: []Option{WithDownloaders(0)}, wantErr: ErrInvalidPoolSize},
		{name: "negative extractors", d: web, opts: []Option{WithExtractors(-1)}, wantErr: ErrInvalidPoolSize},
		{name: "negative per-host", d: web, opts: []Option{WithPerHost(-2)}, wantErr: ErrInvalidPoolSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := New(tt.d, tt.opts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer c.Close()

			if c.perHost != DefaultDownloaders {
				t.Errorf("perHost = %d, want %d", c.perHost, DefaultDownloaders)
			}
		})
	}
}

func TestCrawl(t *testing.T) {
	t.Parallel()

	t.Run("invalid depth", func(t *testing.T) {
		t.Parallel()

		c := newTestCrawler(t, newFakeWeb(nil))
		for _, depth := range []int{0, -3} {
			if _, err := c.Crawl(context.Background(), "http://a.example/", depth); !errors.Is(err, ErrInvalidDepth) {
				t.Errorf("depth %d: error = %v, want ErrInvalidDepth", depth, err)
			}
		}
	})

	t.Run("depth 1 downloads only the start URL", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(chainWeb(5))
		c := newTestCrawler(t, web)

		res, err := c.Crawl(context.Background(), "http://a.example/0", 1)
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		if !slices.Equal(res.Downloaded, []string{"http://a.example/0"}) {
			t.Errorf("Downloaded = %v", res.Downloaded)
		}
		if len(res.Errors) != 0 {
			t.Errorf("Errors = %v", res.Errors)
		}
		if web.fetchCount("http://a.example/1") != 0 {
			t.Error("depth 1 crawl fetched a linked page")
		}
	})

	t.Run("reachability is bounded by depth", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(chainWeb(10))
		c := newTestCrawler(t, web)

		res, err := c.Crawl(context.Background(), "http://a.example/0", 4)
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		want := []string{
			"http://a.example/0",
			"http://a.example/1",
			"http://a.example/2",
			"http://a.example/3",
		}
		if !slices.Equal(res.Downloaded, want) {
			t.Errorf("Downloaded = %v, want %v", res.Downloaded, want)
		}
	})

	t.Run("malformed start URL", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(nil)
		c := newTestCrawler(t, web)

		res, err := c.Crawl(context.Background(), "not a url", 3)
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		if len(res.Downloaded) != 0 {
			t.Errorf("Downloaded = %v", res.Downloaded)
		}
		got := res.Errors["not a url"]
		if KindOf(got) != KindMalformedURL || !errors.Is(got, ErrMalformedURL) {
			t.Errorf("Errors[start] = %v, want MalformedURL", got)
		}
		if web.fetchCount("not a url") != 0 {
			t.Error("malformed URL was downloaded")
		}
	})

	t.Run("malformed start URL is recorded under a host filter", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(nil)
		c := newTestCrawler(t, web)

		res, err := c.Crawl(context.Background(), "::bad", 2, WithAllowedHosts("a.example"))
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		if len(res.Downloaded) != 0 || len(res.Errors) != 1 {
			t.Errorf("Result = %+v, want one error", res)
		}
		if got := res.Errors["::bad"]; KindOf(got) != KindMalformedURL {
			t.Errorf("Errors[start] = %v, want MalformedURL", got)
		}
		if web.maxFetchCount() != 0 {
			t.Error("malformed URL was downloaded")
		}
	})

	t.Run("host filter excludes the start URL", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(chainWeb(3))
		c := newTestCrawler(t, web)

		res, err := c.Crawl(context.Background(), "http://a.example/0", 3, WithAllowedHosts("b.example"))
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		if len(res.Downloaded) != 0 || len(res.Errors) != 0 {
			t.Errorf("Result = %+v, want empty", res)
		}
		if web.maxFetchCount() != 0 {
			t.Error("filtered host was downloaded")
		}
	})

	t.Run("host filter is case-insensitive and skips other hosts", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(map[string]fakePage{
			"http://a.example/":  {links: []string{"http://b.example/", "http://A.EXAMPLE/x"}},
			"http://b.example/":  {},
			"http://A.EXAMPLE/x": {},
		})
		c := newTestCrawler(t, web)

		res, err := c.Crawl(context.Background(), "http://a.example/", 2, WithAllowedHosts("A.Example"))
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		want := []string{"http://A.EXAMPLE/x", "http://a.example/"}
		if !slices.Equal(res.Downloaded, want) {
			t.Errorf("Downloaded = %v, want %v", res.Downloaded, want)
		}
		if web.fetchCount("http://b.example/") != 0 {
			t.Error("host outside the allow-list was downloaded")
		}
	})

	t.Run("partial failure keeps crawling", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(map[string]fakePage{
			"http://a.example/": {links: []string{"http://a.example/ok", "http://a.example/missing", "::bad"}},
			"http://a.example/ok": {links: []string{"http://a.example/deep"}},
			"http://a.example/deep": {},
		})
		c := newTestCrawler(t, web)

		res, err := c.Crawl(context.Background(), "http://a.example/", 3)
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}

		want := []string{"http://a.example/", "http://a.example/deep", "http://a.example/ok"}
		if !slices.Equal(res.Downloaded, want) {
			t.Errorf("Downloaded = %v, want %v", res.Downloaded, want)
		}

		missing := res.Errors["http://a.example/missing"]
		if KindOf(missing) != KindFetch || !errors.Is(missing, ErrFetch) || !errors.Is(missing, errNotFound) {
			t.Errorf("Errors[missing] = %v, want FetchError wrapping not found", missing)
		}
		if KindOf(res.Errors["::bad"]) != KindMalformedURL {
			t.Errorf("Errors[::bad] = %v, want MalformedURL", res.Errors["::bad"])
		}
		if len(res.Errors) != 2 {
			t.Errorf("len(Errors) = %d, want 2: %v", len(res.Errors), res.Errors)
		}
	})

	t.Run("extraction failure is recorded under the parent", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		web := newFakeWeb(map[string]fakePage{
			"http://a.example/": {extractErr: boom},
		})
		c := newTestCrawler(t, web)

		res, err := c.Crawl(context.Background(), "http://a.example/", 2)
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		if !slices.Equal(res.Downloaded, []string{"http://a.example/"}) {
			t.Errorf("Downloaded = %v", res.Downloaded)
		}
		got := res.Errors["http://a.example/"]
		if KindOf(got) != KindExtract || !errors.Is(got, ErrExtract) || !errors.Is(got, boom) {
			t.Errorf("Errors[parent] = %v, want ExtractError", got)
		}
	})

	t.Run("no URL is downloaded twice", func(t *testing.T) {
		t.Parallel()

		// Fully connected site with self links and back links.
		pages := make(map[string]fakePage)
		var all []string
		for i := range 12 {
			all = append(all, fmt.Sprintf("http://a.example/%d", i))
		}
		for _, u := range all {
			pages[u] = fakePage{links: all}
		}
		web := newFakeWeb(pages)
		c := newTestCrawler(t, web, WithDownloaders(4), WithExtractors(4))

		res, err := c.Crawl(context.Background(), all[0], 5)
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		if len(res.Downloaded) != len(all) {
			t.Errorf("downloaded %d pages, want %d", len(res.Downloaded), len(all))
		}
		if n := web.maxFetchCount(); n != 1 {
			t.Errorf("a URL was fetched %d times", n)
		}
	})

	t.Run("per-host cap is honored", func(t *testing.T) {
		t.Parallel()

		root := fakePage{}
		pages := make(map[string]fakePage)
		for _, host := range []string{"a.example", "b.example"} {
			for i := range 20 {
				u := fmt.Sprintf("http://%s/%d", host, i)
				pages[u] = fakePage{}
				root.links = append(root.links, u)
			}
		}
		pages["http://seed.example/"] = root

		web := newFakeWeb(pages)
		web.delay = 2 * time.Millisecond
		c := newTestCrawler(t, web, WithDownloaders(10), WithPerHost(2))

		res, err := c.Crawl(context.Background(), "http://seed.example/", 2)
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		if len(res.Downloaded) != 41 {
			t.Errorf("downloaded %d pages, want 41", len(res.Downloaded))
		}
		for _, host := range []string{"a.example", "b.example"} {
			if p := web.peakFor(host); p > 2 {
				t.Errorf("peak concurrency for %s = %d, want <= 2", host, p)
			}
		}
	})

	t.Run("concurrent crawls on one crawler are independent", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(chainWeb(6))
		c := newTestCrawler(t, web, WithDownloaders(2), WithExtractors(1))

		var wg sync.WaitGroup
		results := make([]*Result, 8)
		errs := make([]error, 8)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = c.Crawl(context.Background(), "http://a.example/0", 3)
			}()
		}
		wg.Wait()

		want := []string{"http://a.example/0", "http://a.example/1", "http://a.example/2"}
		for i := range results {
			if errs[i] != nil {
				t.Errorf("crawl %d error = %v", i, errs[i])
				continue
			}
			if !slices.Equal(results[i].Downloaded, want) {
				t.Errorf("crawl %d Downloaded = %v, want %v", i, results[i].Downloaded, want)
			}
		}
		if n := web.fetchCount("http://a.example/0"); n != 8 {
			t.Errorf("start URL fetched %d times, want 8", n)
		}
	})

	t.Run("cancellation returns the partial result", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(chainWeb(50))
		web.delay = 20 * time.Millisecond
		c := newTestCrawler(t, web)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		res, err := c.Crawl(ctx, "http://a.example/0", 50)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Crawl() error = %v, want DeadlineExceeded", err)
		}
		if res == nil {
			t.Fatal("expected a partial result")
		}
		if len(res.Downloaded) >= 50 {
			t.Errorf("Downloaded %d pages despite cancellation", len(res.Downloaded))
		}
		for u, e := range res.Errors {
			t.Errorf("unexpected error for %s: %v", u, e)
		}
	})

	t.Run("close during a crawl", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(chainWeb(50))
		web.delay = 10 * time.Millisecond
		c, err := New(web)
		if err != nil {
			t.Fatal(err)
		}

		go func() {
			time.Sleep(30 * time.Millisecond)
			_ = c.Close()
		}()

		res, err := c.Crawl(context.Background(), "http://a.example/0", 50)
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Crawl() error = %v, want ErrClosed", err)
		}
		if res == nil {
			t.Fatal("expected a partial result")
		}

		if _, err := c.Crawl(context.Background(), "http://a.example/0", 1); !errors.Is(err, ErrClosed) {
			t.Errorf("Crawl() after Close error = %v, want ErrClosed", err)
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		t.Parallel()

		c, err := New(newFakeWeb(nil))
		if err != nil {
			t.Fatal(err)
		}
		for range 3 {
			if err := c.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		}
	})

	t.Run("custom host resolver", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(chainWeb(2))
		bad := errors.New("rejected")
		c := newTestCrawler(t, web, WithHostResolver(func(string) (string, error) {
			return "", bad
		}))

		res, err := c.Crawl(context.Background(), "http://a.example/0", 2)
		if err != nil {
			t.Fatalf("Crawl() error = %v", err)
		}
		if !errors.Is(res.Errors["http://a.example/0"], bad) {
			t.Errorf("Errors = %v", res.Errors)
		}
	})
}

type countingObserver struct {
	started, finished, failed, links, layers atomic.Int64
}

func (o *countingObserver) DownloadStarted(string) { o.started.Add(1) }

func (o *countingObserver) DownloadFinished(_ string, err error) {
	o.finished.Add(1)
	if err != nil {
		o.failed.Add(1)
	}
}

func (o *countingObserver) LinksExtracted(n int) { o.links.Add(int64(n)) }

func (o *countingObserver) LayerFinished(int, int) { o.layers.Add(1) }

func TestCrawlObserver(t *testing.T) {
	t.Parallel()

	web := newFakeWeb(map[string]fakePage{
		"http://a.example/":  {links: []string{"http://a.example/1", "http://a.example/2"}},
		"http://a.example/1": {},
	})
	obs := &countingObserver{}
	c := newTestCrawler(t, web, WithObserver(obs))

	if _, err := c.Crawl(context.Background(), "http://a.example/", 2); err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	if got := obs.started.Load(); got != 3 {
		t.Errorf("started = %d, want 3", got)
	}
	if got := obs.finished.Load(); got != 3 {
		t.Errorf("finished = %d, want 3", got)
	}
	if got := obs.failed.Load(); got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
	if got := obs.links.Load(); got != 2 {
		t.Errorf("links = %d, want 2", got)
	}
	if got := obs.layers.Load(); got != 2 {
		t.Errorf("layers = %d, want 2", got)
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind     ErrorKind
		want     string
		sentinel error
	}{
		{KindMalformedURL, "MalformedURL", ErrMalformedURL},
		{KindFetch, "FetchError", ErrFetch},
		{KindExtract, "ExtractError", ErrExtract},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()

			if tt.kind.String() != tt.want {
				t.Errorf("String() = %q, want %q", tt.kind.String(), tt.want)
			}

			cause := errors.New("cause")
			err := error(newError(tt.kind, "http://a.example/", cause))
			if !errors.Is(err, tt.sentinel) {
				t.Error("errors.Is(sentinel) = false")
			}
			if !errors.Is(err, cause) {
				t.Error("errors.Is(cause) = false")
			}
			if KindOf(fmt.Errorf("wrapped: %w", err)) != tt.kind {
				t.Error("KindOf did not unwrap")
			}
		})
	}

	if KindOf(errors.New("plain")) != 0 {
		t.Error("KindOf(plain) != 0")
	}
}
