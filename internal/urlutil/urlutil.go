// Package urlutil provides URL parsing helpers shared by the crawler and the
// fetcher: host extraction for per-host admission and allow-list filtering,
// and normalization for deduplication.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMalformedURL is returned when a string cannot be used as a crawl target.
// The crawler records it under the offending URL and never explores it.
var ErrMalformedURL = errors.New("malformed URL")

// HostOf returns the lowercase hostname of rawURL, without port.
//
// The URL must be absolute: a scheme and a non-empty host are required.
// A bare word such as "not a url" parses as a relative path in net/url, so it
// is rejected here rather than silently accepted. Hosts under .onion that
// look like v3 addresses must carry a valid checksum.
func HostOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, rawURL, err)
	}
	if u.Scheme == "" || u.Opaque != "" {
		return "", fmt.Errorf("%w: %q: missing scheme", ErrMalformedURL, rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: %q: missing host", ErrMalformedURL, rawURL)
	}
	if IsOnionHost(host) && !IsValidOnionHost(host) {
		return "", fmt.Errorf("%w: %q: invalid onion address", ErrMalformedURL, rawURL)
	}
	return host, nil
}

// Normalize returns a canonical form of rawURL used as a dedup key.
// The fragment is dropped, scheme and host are lowercased, and an empty path
// becomes "/". Unparseable input is returned unchanged.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Host != "" && u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// IsHTTP reports whether rawURL uses the http or https scheme.
func IsHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
