package fetcher

import "errors"

var (
	// ErrUnexpectedStatus is returned by Download for a non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrBodyTooLarge is returned by Download when the body exceeds the
	// configured maximum size.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrUnsupportedScheme is returned by Download for URLs that are not
	// http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrNilClient is returned by NewHTTPDownloader when no client is given.
	ErrNilClient = errors.New("http client is nil")
)
