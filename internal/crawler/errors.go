package crawler

import (
	"errors"
	"fmt"
)

// Call-level errors returned by New and Crawl.
// Per-URL failures never surface here; they are collected in Result.Errors.
var (
	// ErrInvalidDepth is returned when Crawl is called with depth < 1.
	ErrInvalidDepth = errors.New("invalid depth: must be at least 1")

	// ErrInvalidPoolSize is returned by New when a worker pool size or the
	// per-host cap is not positive.
	ErrInvalidPoolSize = errors.New("invalid pool size: must be positive")

	// ErrNilDownloader is returned by New when no Downloader is supplied.
	ErrNilDownloader = errors.New("downloader is nil")

	// ErrClosed is returned when the crawler was closed before or during a crawl.
	// A crawl interrupted by Close still returns the partial Result.
	ErrClosed = errors.New("crawler is closed")
)

// Sentinels matched by errors.Is against the values stored in Result.Errors.
var (
	// ErrMalformedURL marks a URL whose host could not be resolved.
	ErrMalformedURL = errors.New("malformed URL")

	// ErrFetch marks a URL whose download failed.
	ErrFetch = errors.New("fetch failed")

	// ErrExtract marks a downloaded URL whose links could not be extracted.
	ErrExtract = errors.New("link extraction failed")
)

// ErrorKind classifies a per-URL failure.
type ErrorKind int

const (
	// KindMalformedURL means the URL could not be parsed into a host.
	KindMalformedURL ErrorKind = iota + 1

	// KindFetch means the Downloader returned an error for the URL.
	KindFetch

	// KindExtract means the document was fetched but link extraction failed.
	// It is recorded under the parent URL, which stays downloaded.
	KindExtract
)

// String returns the name used in reports and logs.
func (k ErrorKind) String() string {
	switch k {
	case KindMalformedURL:
		return "MalformedURL"
	case KindFetch:
		return "FetchError"
	case KindExtract:
		return "ExtractError"
	default:
		return "Unknown"
	}
}

// sentinel returns the package sentinel matching the kind.
func (k ErrorKind) sentinel() error {
	switch k {
	case KindMalformedURL:
		return ErrMalformedURL
	case KindFetch:
		return ErrFetch
	case KindExtract:
		return ErrExtract
	default:
		return nil
	}
}

// Error is a per-URL crawl failure.
type Error struct {
	// Kind is the failure class.
	Kind ErrorKind

	// URL is the URL the failure is recorded under.
	URL string

	// Err is the underlying cause reported by the collaborator.
	Err error
}

// newError builds an *Error.
func newError(kind ErrorKind, rawURL string, err error) *Error {
	return &Error{Kind: kind, URL: rawURL, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the ErrorKind carried by err, or 0 if err is not an *Error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
