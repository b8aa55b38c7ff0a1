package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/webcrawler/internal/crawler"
	"github.com/nao1215/webcrawler/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of seeds crawled at the same time when
// WithConcurrency is not given.
const DefaultConcurrency = 4

// Crawler runs one crawl. *crawler.WebCrawler implements it.
type Crawler interface {
	Crawl(ctx context.Context, url string, depth int, opts ...crawler.CrawlOption) (*crawler.Result, error)
}

// BatchProcessor crawls several seeds concurrently on one Crawler and runs
// each finished report through a Pipeline.
//
// All crawls share the crawler's worker pools, so concurrency bounds how many
// crawls are in progress, not how many downloads run.
type BatchProcessor struct {
	// crawler runs every crawl of the batch.
	crawler Crawler

	// pipeline processes each finished report; may be empty.
	pipeline *Pipeline

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// now returns the current time; replaced in tests.
	now func() time.Time
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
// Non-positive values keep DefaultConcurrency.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithPipeline sets the pipeline run for every finished crawl.
func WithPipeline(p *Pipeline) BatchOption {
	return func(b *BatchProcessor) {
		b.pipeline = p
	}
}

// NewBatchProcessor creates a new BatchProcessor crawling with c.
func NewBatchProcessor(c Crawler, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		crawler:     c,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	if bp.pipeline == nil {
		bp.pipeline = New(WithLogger(bp.logger))
	}

	return bp
}

// ProcessBatch crawls every request and returns one report per request, in
// request order.
//
// A failing crawl never stops the others; its failure is in its report.
// When ctx is cancelled, crawls in progress end with partial results and
// requests not yet started get a cancelled report without results. The
// error is ctx's error in that case and nil otherwise.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, requests []model.CrawlRequest) ([]*model.CrawlReport, error) {
	reports := make([]*model.CrawlReport, len(requests))

	err := bp.ProcessBatchWithCallback(ctx, requests, func(report *model.CrawlReport, index int) {
		// Each index is written by exactly one goroutine.
		reports[index] = report
	})

	return reports, err
}

// ProcessBatchWithCallback crawls every request and calls callback with each
// report as soon as its crawl and pipeline finished. The callback is called
// from the goroutine that ran the crawl and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	requests []model.CrawlRequest,
	callback func(report *model.CrawlReport, index int),
) error {
	bp.logger.Info("starting batch",
		"total_seeds", len(requests),
		"concurrency", bp.concurrency,
	)
	startTime := bp.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, req := range requests {
		if gctx.Err() != nil {
			// Go blocks while the limit is reached; once cancelled, the
			// remaining requests are reported without being scheduled.
			callback(bp.finish(ctx, req, bp.now(), nil, gctx.Err()), i)
			continue
		}

		g.Go(func() error {
			started := bp.now()
			if err := gctx.Err(); err != nil {
				callback(bp.finish(ctx, req, started, nil, err), i)
				return err
			}

			bp.logger.Info("crawling",
				"url", req.StartURL,
				"depth", req.Depth,
				"index", i+1,
				"total", len(requests),
			)

			var opts []crawler.CrawlOption
			if len(req.AllowedHosts) > 0 {
				opts = append(opts, crawler.WithAllowedHosts(req.AllowedHosts...))
			}

			res, err := bp.crawler.Crawl(gctx, req.StartURL, req.Depth, opts...)
			callback(bp.finish(ctx, req, started, res, err), i)

			// Per-crawl failures are in the report; only cancellation
			// stops the batch.
			return ctx.Err()
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	bp.logger.Info("batch complete",
		"total_seeds", len(requests),
		"elapsed", bp.now().Sub(startTime),
	)

	return err
}

// finish builds the report of one crawl and runs the pipeline on it. The
// pipeline gets a context that survives cancellation so interrupted crawls
// are still recorded.
func (bp *BatchProcessor) finish(ctx context.Context, req model.CrawlRequest, started time.Time, res *crawler.Result, err error) *model.CrawlReport {
	report := model.NewCrawlReport(req, started, bp.now(), res, err)
	_ = bp.pipeline.Execute(context.WithoutCancel(ctx), report) //nolint:errcheck // step errors are logged by the pipeline
	return report
}
