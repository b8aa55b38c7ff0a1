// Package metrics exports crawl progress as Prometheus metrics.
//
// Collector implements crawler.Observer, so it is plugged into a crawler
// with crawler.WithObserver. Each Collector owns its registry; nothing is
// registered globally, which keeps several collectors in one process (and
// in tests) independent.
package metrics
