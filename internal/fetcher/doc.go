// Package fetcher downloads web pages over HTTP and extracts their links.
//
// HTTPDownloader satisfies crawler.Downloader and returns a *Document that
// satisfies crawler.Document. The HTTP client is supplied by the caller so
// the same code runs over a direct connection or through the Tor SOCKS5
// proxy built by the tor package.
//
// Link extraction uses golang.org/x/net/html rather than regular
// expressions, since real pages are frequently malformed. Bodies are decoded
// from the charset announced by the server or the page itself, and brotli,
// gzip and deflate content encodings are undone before parsing.
package fetcher
