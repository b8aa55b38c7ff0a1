// Package model defines the serializable view of a finished crawl.
//
// A CrawlReport is built once from a crawler.Result plus the request and
// timing around it. Report writers and the history database only ever see
// CrawlReport, never crawler internals, so their formats stay stable when the
// crawler changes.
package model
