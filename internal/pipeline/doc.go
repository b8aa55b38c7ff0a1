// Package pipeline runs crawls for several start URLs and post-processes
// each finished crawl.
//
// BatchProcessor crawls seeds concurrently on one shared crawler, with the
// number of simultaneous crawls bounded by errgroup.SetLimit. Every crawl
// produces a model.CrawlReport, which is then passed through a Pipeline of
// Steps: logging the outcome, recording metrics, saving it to the history
// database. A failing step is logged; it never changes the report.
package pipeline
