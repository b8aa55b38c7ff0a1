package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/webcrawler/internal/urlutil"
)

// Default pool sizes used when no option overrides them.
const (
	// DefaultDownloaders is the number of concurrent downloads.
	DefaultDownloaders = 16

	// DefaultExtractors is the number of concurrent link extractions.
	DefaultExtractors = 8
)

// Downloader fetches a page. It must be safe for concurrent use.
type Downloader interface {
	// Download fetches rawURL. The context is cancelled when the crawl is
	// cancelled or the crawler is closed.
	Download(ctx context.Context, rawURL string) (Document, error)
}

// Document is a fetched page.
type Document interface {
	// ExtractLinks returns the absolute URLs the page links to.
	ExtractLinks() ([]string, error)
}

// HostResolver returns the host a URL belongs to, or an error when the URL is
// malformed.
type HostResolver func(rawURL string) (string, error)

// Result is the outcome of one crawl.
type Result struct {
	// Downloaded lists every successfully fetched URL once, sorted.
	Downloaded []string

	// Errors maps a URL to the first failure recorded for it. Every value
	// is an *Error.
	Errors map[string]error
}

// WebCrawler is a breadth-first crawler with a download pool, an extraction
// pool and a per-host download cap. The pools are shared by every Crawl call
// until Close.
type WebCrawler struct {
	downloader Downloader
	hostOf     HostResolver
	logger     *slog.Logger
	observer   Observer

	downloaderCount int
	extractorCount  int
	perHost         int

	downloads *workerPool
	extracts  *workerPool

	closeOnce sync.Once
	closed    chan struct{}
}

// Option configures a WebCrawler.
type Option func(*WebCrawler)

// WithDownloaders sets the download pool size.
func WithDownloaders(n int) Option {
	return func(c *WebCrawler) {
		c.downloaderCount = n
	}
}

// WithExtractors sets the extraction pool size.
func WithExtractors(n int) Option {
	return func(c *WebCrawler) {
		c.extractorCount = n
	}
}

// WithPerHost sets the maximum number of concurrent downloads per host.
// When unset it equals the download pool size.
func WithPerHost(n int) Option {
	return func(c *WebCrawler) {
		c.perHost = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *WebCrawler) {
		c.logger = logger
	}
}

// WithObserver sets a progress observer.
func WithObserver(o Observer) Option {
	return func(c *WebCrawler) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithHostResolver replaces urlutil.HostOf.
func WithHostResolver(f HostResolver) Option {
	return func(c *WebCrawler) {
		if f != nil {
			c.hostOf = f
		}
	}
}

// New creates a WebCrawler and starts its pools.
// Invalid sizes are the only construction failure.
func New(d Downloader, opts ...Option) (*WebCrawler, error) {
	if d == nil {
		return nil, ErrNilDownloader
	}

	c := &WebCrawler{
		downloader:      d,
		hostOf:          urlutil.HostOf,
		observer:        nopObserver{},
		downloaderCount: DefaultDownloaders,
		extractorCount:  DefaultExtractors,
		closed:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.perHost == 0 {
		c.perHost = c.downloaderCount
	}
	if c.perHost < 0 {
		return nil, fmt.Errorf("%w: per-host cap %d", ErrInvalidPoolSize, c.perHost)
	}

	var err error
	if c.downloads, err = newWorkerPool("download", c.downloaderCount); err != nil {
		return nil, err
	}
	if c.extracts, err = newWorkerPool("extract", c.extractorCount); err != nil {
		c.downloads.Close()
		return nil, err
	}

	return c, nil
}

// CrawlOption configures a single Crawl call.
type CrawlOption func(*crawlOptions)

type crawlOptions struct {
	allowedHosts []string
}

// WithAllowedHosts restricts the crawl, start URL included, to the given
// hostnames. Hosts compare case-insensitively and without port. Passing no
// hosts allows nothing; omit the option for an unrestricted crawl.
func WithAllowedHosts(hosts ...string) CrawlOption {
	return func(o *crawlOptions) {
		o.allowedHosts = append(make([]string, 0, len(hosts)), hosts...)
	}
}

// Crawl downloads rawURL and everything reachable from it in at most
// depth-1 link hops. Depth 1 downloads only rawURL.
//
// Per-URL failures are collected in the Result and never abort the crawl.
// The returned error is non-nil only for an invalid depth, a crawler that was
// closed, or a cancelled ctx; in the last two cases the partial Result is
// still returned.
func (c *WebCrawler) Crawl(ctx context.Context, rawURL string, depth int, opts ...CrawlOption) (*Result, error) {
	if depth < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDepth, depth)
	}
	if c.isClosed() {
		return nil, ErrClosed
	}

	var co crawlOptions
	for _, opt := range opts {
		opt(&co)
	}

	// Downloads in flight are cancelled by the caller or by Close.
	crawlCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.downloads.ctx, cancel)
	defer stop()

	st := newCrawlState(crawlCtx, co.allowedHosts, newHostRegistry(c.perHost, c.downloads))
	st.visited.add(rawURL)

	c.logger.Debug("crawl started",
		"url", rawURL,
		"depth", depth,
		"allowedHosts", co.allowedHosts,
	)

	current := []string{rawURL}
	for d := 1; d <= depth && len(current) > 0; d++ {
		if ctx.Err() != nil || c.isClosed() {
			break
		}
		current = c.crawlLayer(st, d, current, d < depth)
	}

	res := st.result()

	c.logger.Debug("crawl finished",
		"url", rawURL,
		"downloaded", len(res.Downloaded),
		"errors", len(res.Errors),
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if st.abandoned.Load() || (c.isClosed() && len(current) > 0) {
		return res, ErrClosed
	}
	return res, nil
}

// crawlLayer downloads one breadth-first level and returns the next one.
// explore is false on the last level, where discovered links are not
// queued since nothing will download them.
func (c *WebCrawler) crawlLayer(st *crawlState, depth int, urls []string, explore bool) []string {
	l := newLayer(depth)

	for _, rawURL := range urls {
		host, err := c.hostOf(rawURL)
		if err != nil {
			st.recordError(newError(KindMalformedURL, rawURL, err))
			continue
		}
		if !st.allows(host) {
			c.logger.Debug("host not allowed", "url", rawURL, "host", host)
			continue
		}

		q := st.hosts.get(host)
		l.barrier.register()
		q.admit(c.downloadTask(st, l, q, rawURL, explore))
	}

	l.barrier.wait()

	next := l.nextLayer()
	c.observer.LayerFinished(depth, len(next))
	c.logger.Debug("layer finished",
		"depth", depth,
		"submitted", len(urls),
		"discovered", len(next),
	)
	return next
}

// downloadTask fetches one URL. It always releases its host slot and then
// arrives at the layer barrier, whatever happened.
func (c *WebCrawler) downloadTask(st *crawlState, l *layer, q *hostQueue, rawURL string, explore bool) task {
	return func(poolCtx context.Context) {
		defer l.barrier.arrive()
		defer q.release()

		if poolCtx.Err() != nil {
			st.abandoned.Store(true)
			return
		}
		if st.ctx.Err() != nil {
			return
		}

		c.observer.DownloadStarted(q.host)
		doc, err := c.downloader.Download(st.ctx, rawURL)
		c.observer.DownloadFinished(q.host, err)

		if err != nil {
			if st.ctx.Err() != nil {
				if poolCtx.Err() != nil {
					st.abandoned.Store(true)
				}
				return
			}
			c.logger.Debug("download failed", "url", rawURL, "error", err)
			st.recordError(newError(KindFetch, rawURL, err))
			return
		}
		st.downloaded.add(rawURL)

		l.barrier.register()
		c.extracts.Submit(c.extractTask(st, l, rawURL, doc, explore))
	}
}

// extractTask lists the links of a downloaded document and queues unseen
// ones for the next layer. Failures are recorded under the parent URL.
func (c *WebCrawler) extractTask(st *crawlState, l *layer, parent string, doc Document, explore bool) task {
	return func(poolCtx context.Context) {
		defer l.barrier.arrive()

		if poolCtx.Err() != nil {
			st.abandoned.Store(true)
			return
		}
		if st.ctx.Err() != nil {
			return
		}

		links, err := doc.ExtractLinks()
		if err != nil {
			c.logger.Debug("link extraction failed", "url", parent, "error", err)
			st.recordError(newError(KindExtract, parent, err))
			return
		}
		c.observer.LinksExtracted(len(links))

		if !explore {
			return
		}
		for _, link := range links {
			if st.visited.add(link) {
				l.discover(link)
			}
		}
	}
}

// Close shuts both pools down. Running tasks see a cancelled context, queued
// tasks are dropped, and a Crawl in progress returns ErrClosed with what it
// collected. Close is idempotent.
func (c *WebCrawler) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.downloads.Close()
		c.extracts.Close()
	})
	return nil
}

func (c *WebCrawler) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
