package model

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/nao1215/webcrawler/internal/crawler"
)

// CrawlStatus is how a crawl ended.
type CrawlStatus string

const (
	// StatusCompleted means every layer up to the requested depth ran.
	StatusCompleted CrawlStatus = "completed"

	// StatusCancelled means the crawl was cancelled or timed out; the
	// report holds what was collected until then.
	StatusCancelled CrawlStatus = "cancelled"

	// StatusClosed means the crawler was closed during the crawl.
	StatusClosed CrawlStatus = "closed"

	// StatusFailed means the crawl could not start, for example because of
	// an invalid depth.
	StatusFailed CrawlStatus = "failed"
)

// ErrorEntry is one per-URL failure.
type ErrorEntry struct {
	// URL is the URL the failure is recorded under.
	URL string `json:"url"`

	// Kind is the failure class: MalformedURL, FetchError or ExtractError.
	Kind string `json:"kind"`

	// Message is the error text.
	Message string `json:"message"`
}

// CrawlReport is the result of crawling one start URL.
type CrawlReport struct {
	// ID is the history database row id; zero until saved.
	ID int64 `json:"id,omitempty"`

	// StartURL is the seed of the crawl.
	StartURL string `json:"start_url"`

	// Depth is the requested crawl depth.
	Depth int `json:"depth"`

	// AllowedHosts is the host allow-list; empty means unrestricted.
	AllowedHosts []string `json:"allowed_hosts,omitempty"`

	// StartedAt and FinishedAt bracket the crawl.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Status is how the crawl ended.
	Status CrawlStatus `json:"status"`

	// Error is the call-level error text, if any.
	Error string `json:"error,omitempty"`

	// Downloaded lists successfully fetched URLs, sorted.
	Downloaded []string `json:"downloaded"`

	// Errors lists per-URL failures sorted by URL.
	Errors []ErrorEntry `json:"errors"`
}

// CrawlRequest describes the crawl a report is built for.
type CrawlRequest struct {
	StartURL     string
	Depth        int
	AllowedHosts []string
}

// NewCrawlReport builds a report from what crawler.WebCrawler.Crawl
// returned. res may be nil when the crawl could not start.
func NewCrawlReport(req CrawlRequest, started, finished time.Time, res *crawler.Result, callErr error) *CrawlReport {
	r := &CrawlReport{
		StartURL:     req.StartURL,
		Depth:        req.Depth,
		AllowedHosts: req.AllowedHosts,
		StartedAt:    started,
		FinishedAt:   finished,
		Status:       statusOf(res, callErr),
		Downloaded:   []string{},
		Errors:       []ErrorEntry{},
	}
	if callErr != nil {
		r.Error = callErr.Error()
	}
	if res == nil {
		return r
	}

	r.Downloaded = append(r.Downloaded, res.Downloaded...)
	sort.Strings(r.Downloaded)

	for u, err := range res.Errors {
		r.Errors = append(r.Errors, ErrorEntry{
			URL:     u,
			Kind:    crawler.KindOf(err).String(),
			Message: err.Error(),
		})
	}
	sort.Slice(r.Errors, func(i, j int) bool {
		return r.Errors[i].URL < r.Errors[j].URL
	})
	return r
}

func statusOf(res *crawler.Result, err error) CrawlStatus {
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	case errors.Is(err, crawler.ErrClosed) && res != nil:
		return StatusClosed
	default:
		return StatusFailed
	}
}

// Duration is how long the crawl ran.
func (r *CrawlReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary counts a report's outcome.
type Summary struct {
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`

	// ByKind counts failures per error kind.
	ByKind map[string]int `json:"by_kind"`
}

// Summary returns the counts of r.
func (r *CrawlReport) Summary() Summary {
	s := Summary{
		Downloaded: len(r.Downloaded),
		Failed:     len(r.Errors),
		ByKind:     make(map[string]int),
	}
	for _, e := range r.Errors {
		s.ByKind[e.Kind]++
	}
	return s
}

// Kinds returns the error kinds present in the summary in a stable order.
func (s Summary) Kinds() []string {
	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
