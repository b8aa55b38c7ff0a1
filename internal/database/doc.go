// Package database stores the history of finished crawls in SQLite.
//
// CrawlDB keeps:
//   - one row per crawl report, with the full report as JSON
//   - one row per URL a crawl downloaded or failed on
//
// The history is an archive for the history command. A crawl never reads it
// to decide what to download.
//
// SQLite is used through modernc.org/sqlite, which needs no CGO; the
// database is a single file in the XDG data directory.
package database
