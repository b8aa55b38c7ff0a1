// Package main provides the entry point for the webcrawler CLI.
//
// webcrawler downloads a site breadth-first up to a given depth, with a
// fixed number of concurrent downloads and a cap per host, and reports every
// page it fetched and every URL that failed.
//
// Usage:
//
//	webcrawler crawl https://example.com/
//	webcrawler crawl -d 3 -H example.com https://example.com/ https://blog.example.com/
//	webcrawler history
//
// See --help for all available options.
package main

// main is the entry point for webcrawler.
func main() {
	Execute()
}
