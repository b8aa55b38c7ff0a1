// Package tor routes crawler traffic through a Tor SOCKS5 proxy.
//
// Proxy wraps an external proxy such as a system Tor daemon listening on
// 127.0.0.1:9050 and hands out *http.Client values for the fetcher. Daemon
// launches a private Tor process with tornago for machines that have no Tor
// daemon running.
//
// The package holds no global state: the command builds a Proxy once and
// passes the resulting client to the downloader.
package tor
