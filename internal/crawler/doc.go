// Package crawler provides a breadth-first web crawler with bounded
// concurrency.
//
// # Architecture
//
// A WebCrawler owns two worker pools, one for downloads and one for link
// extraction, shared by every Crawl call until Close. A crawl proceeds one
// depth level at a time:
//
//  1. Every URL of the level is resolved to its host and admitted to that
//     host's queue. A host runs at most the per-host cap of downloads at
//     once; the rest wait in FIFO order and are handed to the download pool
//     as slots free up.
//  2. A successful download schedules link extraction on the extraction
//     pool. Links not seen before in this crawl form the next level.
//  3. A layer barrier counts every scheduled task. The coordinator waits for
//     it to drain before starting the next level, so levels never overlap.
//
// Design decision: The pools never block on Submit. A download task hands
// its host slot to the next queued download by submitting into its own pool,
// and a bounded queue would deadlock once every worker did that at once.
//
// # Failures
//
// A failing URL never aborts the crawl. Each failure is recorded as an *Error
// under its URL, first failure wins, and the crawl goes on. Only an invalid
// depth, a closed crawler or a cancelled context make Crawl return an error.
//
// # Usage
//
//	c, err := crawler.New(downloader,
//		crawler.WithDownloaders(16),
//		crawler.WithExtractors(8),
//		crawler.WithPerHost(4),
//	)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	res, err := c.Crawl(ctx, "https://example.com/", 3,
//		crawler.WithAllowedHosts("example.com"))
package crawler
