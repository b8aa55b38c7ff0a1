package fetcher

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/nao1215/webcrawler/internal/crawler"
	"github.com/nao1215/webcrawler/internal/urlutil"
)

// DefaultUserAgent is sent when no User-Agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

// DefaultMaxBodySize is the default limit for a response body.
const DefaultMaxBodySize int64 = 5 * 1024 * 1024

// HTTPDownloader fetches pages with an *http.Client.
// It is safe for concurrent use.
type HTTPDownloader struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	headers     map[string]string
	cookie      string
	hostFn      HostSettingsFunc
}

// HostSettingsFunc returns the extra headers and cookie for requests to
// host, a lowercased hostname without port.
type HostSettingsFunc func(host string) (headers map[string]string, cookie string)

// Option configures an HTTPDownloader.
type Option func(*HTTPDownloader)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *HTTPDownloader) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the maximum number of body bytes read per page.
func WithMaxBodySize(size int64) Option {
	return func(d *HTTPDownloader) {
		if size > 0 {
			d.maxBodySize = size
		}
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(d *HTTPDownloader) {
		for k, v := range headers {
			d.headers[k] = v
		}
	}
}

// WithCookie sets the Cookie header of every request.
func WithCookie(cookie string) Option {
	return func(d *HTTPDownloader) {
		d.cookie = cookie
	}
}

// WithHostSettings applies per-host headers and cookie on top of the global
// ones. The host is that of each request, so settings never leak to other
// sites a crawl reaches.
func WithHostSettings(fn HostSettingsFunc) Option {
	return func(d *HTTPDownloader) {
		d.hostFn = fn
	}
}

// NewHTTPDownloader creates a downloader using client.
func NewHTTPDownloader(client *http.Client, opts ...Option) (*HTTPDownloader, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	d := &HTTPDownloader{
		client:      client,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		headers:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Download fetches rawURL and returns the page as a crawler.Document.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL string) (crawler.Document, error) {
	return d.Fetch(ctx, rawURL)
}

// Fetch fetches rawURL. A non-2xx status is an error.
func (d *HTTPDownloader) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	if !urlutil.IsHTTP(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}
	if d.cookie != "" {
		req.Header.Set("Cookie", d.cookie)
	}
	if d.hostFn != nil {
		headers, cookie := d.hostFn(strings.ToLower(req.URL.Hostname()))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := d.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Document{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// readBody undoes the content encoding and reads at most maxBodySize bytes.
func (d *HTTPDownloader) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		rc, err := newDeflateReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("deflate decode: %w", err)
		}
		defer rc.Close()
		reader = rc
	}

	body, err := io.ReadAll(io.LimitReader(reader, d.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > d.maxBodySize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, d.maxBodySize)
	}
	return body, nil
}

// newDeflateReader decodes an HTTP "deflate" body, which is a zlib stream.
// Some servers send raw DEFLATE instead; that is detected by the missing
// zlib header.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err != nil {
		return nil, err
	}
	if isZlibHeader(header[0], header[1]) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

// isZlibHeader reports whether cmf and flg start a zlib stream (RFC 1950):
// compression method 8 and a header checksum divisible by 31.
func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
