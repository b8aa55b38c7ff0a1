package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestDocumentExtractLinks(t *testing.T) {
	t.Parallel()

	t.Run("resolves relative links and skips special schemes", func(t *testing.T) {
		t.Parallel()

		doc := &Document{
			FinalURL:    "http://example.com/dir/page.html",
			ContentType: "text/html; charset=utf-8",
			Body: []byte(`<html><body>
				<a href="/root">Root</a>
				<a href="sibling.html">Sibling</a>
				<a href="http://other.com/x#frag">Other</a>
				<a href="javascript:void(0)">JS</a>
				<a href="mailto:a@example.com">Mail</a>
				<a href="tel:123">Tel</a>
				<a href="data:text/plain,hi">Data</a>
				<a href="#top">Anchor</a>
				<a href="ftp://example.com/file">FTP</a>
				<a>No href</a>
			</body></html>`),
		}

		links, err := doc.ExtractLinks()
		if err != nil {
			t.Fatalf("ExtractLinks() error = %v", err)
		}

		want := []string{
			"http://example.com/root",
			"http://example.com/dir/sibling.html",
			"http://other.com/x",
		}
		if !slices.Equal(links, want) {
			t.Errorf("ExtractLinks() = %v, want %v", links, want)
		}
	})

	t.Run("removes duplicates", func(t *testing.T) {
		t.Parallel()

		doc := &Document{
			FinalURL:    "http://example.com/",
			ContentType: "text/html",
			Body:        []byte(`<a href="/a">1</a><a href="/a#x">2</a><area href="/a"><a href="/b">3</a>`),
		}

		links, err := doc.ExtractLinks()
		if err != nil {
			t.Fatalf("ExtractLinks() error = %v", err)
		}
		want := []string{"http://example.com/a", "http://example.com/b"}
		if !slices.Equal(links, want) {
			t.Errorf("ExtractLinks() = %v, want %v", links, want)
		}
	})

	t.Run("honors base href", func(t *testing.T) {
		t.Parallel()

		doc := &Document{
			FinalURL:    "http://example.com/page",
			ContentType: "text/html",
			Body:        []byte(`<html><head><base href="http://cdn.example.com/docs/"></head><body><a href="intro">x</a></body></html>`),
		}

		links, err := doc.ExtractLinks()
		if err != nil {
			t.Fatalf("ExtractLinks() error = %v", err)
		}
		if len(links) != 1 || links[0] != "http://cdn.example.com/docs/intro" {
			t.Errorf("ExtractLinks() = %v", links)
		}
	})

	t.Run("non-html has no links", func(t *testing.T) {
		t.Parallel()

		doc := &Document{
			FinalURL:    "http://example.com/file.pdf",
			ContentType: "application/pdf",
			Body:        []byte(`<a href="/nope">`),
		}

		links, err := doc.ExtractLinks()
		if err != nil {
			t.Fatalf("ExtractLinks() error = %v", err)
		}
		if len(links) != 0 {
			t.Errorf("expected no links, got %v", links)
		}
	})

	t.Run("decodes declared charset", func(t *testing.T) {
		t.Parallel()

		// "caf\xe9" is latin-1 for café.
		doc := &Document{
			FinalURL:    "http://example.com/",
			ContentType: "text/html; charset=iso-8859-1",
			Body:        []byte("<a href=\"/caf\xe9\">x</a>"),
		}

		links, err := doc.ExtractLinks()
		if err != nil {
			t.Fatalf("ExtractLinks() error = %v", err)
		}
		if len(links) != 1 || links[0] != "http://example.com/caf%C3%A9" {
			t.Errorf("ExtractLinks() = %v", links)
		}
	})

	t.Run("malformed base URL is an error", func(t *testing.T) {
		t.Parallel()

		doc := &Document{FinalURL: "http://[::1", ContentType: "text/html"}
		if _, err := doc.ExtractLinks(); err == nil {
			t.Error("expected error for malformed base URL")
		}
	})
}

func TestNewHTTPDownloader(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPDownloader(nil); !errors.Is(err, ErrNilClient) {
		t.Errorf("expected ErrNilClient, got %v", err)
	}
}

func TestHTTPDownloaderFetch(t *testing.T) {
	t.Parallel()

	t.Run("sends configured headers", func(t *testing.T) {
		t.Parallel()

		var got http.Header
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<a href="/next">next</a>`))
		}))
		defer server.Close()

		d, err := NewHTTPDownloader(server.Client(),
			WithUserAgent("test-agent"),
			WithHeaders(map[string]string{"X-Test": "yes"}),
			WithCookie("session=abc"),
		)
		if err != nil {
			t.Fatalf("NewHTTPDownloader() error = %v", err)
		}

		doc, err := d.Fetch(context.Background(), server.URL+"/")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		if got.Get("User-Agent") != "test-agent" {
			t.Errorf("User-Agent = %q", got.Get("User-Agent"))
		}
		if got.Get("X-Test") != "yes" {
			t.Errorf("X-Test = %q", got.Get("X-Test"))
		}
		if got.Get("Cookie") != "session=abc" {
			t.Errorf("Cookie = %q", got.Get("Cookie"))
		}

		links, err := doc.ExtractLinks()
		if err != nil {
			t.Fatalf("ExtractLinks() error = %v", err)
		}
		if len(links) != 1 || links[0] != server.URL+"/next" {
			t.Errorf("links = %v", links)
		}
	})

	t.Run("host settings apply to the request host", func(t *testing.T) {
		t.Parallel()

		var got http.Header
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			w.Header().Set("Content-Type", "text/html")
		}))
		defer server.Close()

		var asked []string
		d, err := NewHTTPDownloader(server.Client(),
			WithCookie("global=1"),
			WithHostSettings(func(host string) (map[string]string, string) {
				asked = append(asked, host)
				if host == "127.0.0.1" {
					return map[string]string{"Authorization": "Bearer t"}, "host=1"
				}
				return nil, ""
			}),
		)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := d.Fetch(context.Background(), server.URL+"/"); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		if len(asked) != 1 || asked[0] != "127.0.0.1" {
			t.Errorf("host settings asked for %v", asked)
		}
		if got.Get("Authorization") != "Bearer t" {
			t.Errorf("Authorization = %q", got.Get("Authorization"))
		}
		if got.Get("Cookie") != "host=1" {
			t.Errorf("Cookie = %q, want host cookie to override", got.Get("Cookie"))
		}
	})

	t.Run("non-2xx status is an error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		d, err := NewHTTPDownloader(server.Client())
		if err != nil {
			t.Fatalf("NewHTTPDownloader() error = %v", err)
		}

		_, err = d.Download(context.Background(), server.URL+"/missing")
		if !errors.Is(err, ErrUnexpectedStatus) {
			t.Errorf("expected ErrUnexpectedStatus, got %v", err)
		}
	})

	t.Run("non-http scheme is refused", func(t *testing.T) {
		t.Parallel()

		d, err := NewHTTPDownloader(http.DefaultClient)
		if err != nil {
			t.Fatalf("NewHTTPDownloader() error = %v", err)
		}

		_, err = d.Download(context.Background(), "ftp://example.com/file")
		if !errors.Is(err, ErrUnsupportedScheme) {
			t.Errorf("expected ErrUnsupportedScheme, got %v", err)
		}
	})

	t.Run("body over the limit is an error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 100)))
		}))
		defer server.Close()

		d, err := NewHTTPDownloader(server.Client(), WithMaxBodySize(10))
		if err != nil {
			t.Fatalf("NewHTTPDownloader() error = %v", err)
		}

		_, err = d.Fetch(context.Background(), server.URL)
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Errorf("expected ErrBodyTooLarge, got %v", err)
		}
	})

	t.Run("links resolve against the redirect target", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/new/", http.StatusFound)
		})
		mux.HandleFunc("/new/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<a href="child">c</a>`))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		d, err := NewHTTPDownloader(server.Client())
		if err != nil {
			t.Fatalf("NewHTTPDownloader() error = %v", err)
		}

		doc, err := d.Fetch(context.Background(), server.URL+"/old")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if doc.URL != server.URL+"/old" || doc.FinalURL != server.URL+"/new/" {
			t.Errorf("URL = %q, FinalURL = %q", doc.URL, doc.FinalURL)
		}

		links, err := doc.ExtractLinks()
		if err != nil {
			t.Fatalf("ExtractLinks() error = %v", err)
		}
		if len(links) != 1 || links[0] != server.URL+"/new/child" {
			t.Errorf("links = %v", links)
		}
	})

	t.Run("decodes content encodings", func(t *testing.T) {
		t.Parallel()

		page := []byte(`<a href="/encoded">e</a>`)

		var br bytes.Buffer
		bw := brotli.NewWriter(&br)
		_, _ = bw.Write(page)
		_ = bw.Close()

		var gz bytes.Buffer
		gw := gzip.NewWriter(&gz)
		_, _ = gw.Write(page)
		_ = gw.Close()

		var zl bytes.Buffer
		zw := zlib.NewWriter(&zl)
		_, _ = zw.Write(page)
		_ = zw.Close()

		var raw bytes.Buffer
		fw, _ := flate.NewWriter(&raw, flate.DefaultCompression)
		_, _ = fw.Write(page)
		_ = fw.Close()

		tests := []struct {
			name     string
			encoding string
			body     []byte
		}{
			{name: "brotli", encoding: "br", body: br.Bytes()},
			{name: "gzip", encoding: "gzip", body: gz.Bytes()},
			{name: "deflate as zlib stream", encoding: "deflate", body: zl.Bytes()},
			{name: "deflate without zlib header", encoding: "deflate", body: raw.Bytes()},
			{name: "identity", encoding: "", body: page},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Content-Type", "text/html")
					if tt.encoding != "" {
						w.Header().Set("Content-Encoding", tt.encoding)
					}
					_, _ = w.Write(tt.body)
				}))
				defer server.Close()

				d, err := NewHTTPDownloader(server.Client())
				if err != nil {
					t.Fatalf("NewHTTPDownloader() error = %v", err)
				}

				doc, err := d.Fetch(context.Background(), server.URL)
				if err != nil {
					t.Fatalf("Fetch() error = %v", err)
				}
				if !bytes.Equal(doc.Body, page) {
					t.Errorf("Body = %q, want %q", doc.Body, page)
				}
			})
		}
	})

	t.Run("cancelled context fails", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		d, err := NewHTTPDownloader(server.Client())
		if err != nil {
			t.Fatalf("NewHTTPDownloader() error = %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := d.Fetch(ctx, server.URL); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
