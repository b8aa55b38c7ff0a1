package fetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Document is a downloaded page.
type Document struct {
	// URL is the URL that was requested.
	URL string

	// FinalURL is the URL after redirects. Relative links resolve against it.
	FinalURL string

	// StatusCode is the HTTP status of the response.
	StatusCode int

	// ContentType is the Content-Type response header.
	ContentType string

	// Body is the decoded response body.
	Body []byte
}

// IsHTML reports whether the document should be parsed for links.
// A missing Content-Type is treated as HTML.
func (d *Document) IsHTML() bool {
	ct := strings.ToLower(d.ContentType)
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// ExtractLinks returns the absolute http and https URLs the page links to
// through <a> and <area> elements, in document order and without duplicates.
// Fragments are removed. Non-HTML documents have no links.
func (d *Document) ExtractLinks() ([]string, error) {
	if !d.IsHTML() {
		return []string{}, nil
	}

	base, err := url.Parse(d.FinalURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	r, err := charset.NewReader(bytes.NewReader(d.Body), d.ContentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}

	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	e := &linkExtractor{base: base, seen: make(map[string]struct{}), links: make([]string, 0)}
	e.walk(root)
	return e.links, nil
}

type linkExtractor struct {
	base    *url.URL
	baseSet bool
	seen    map[string]struct{}
	links   []string
}

func (e *linkExtractor) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "base":
			// Only the first <base href> counts.
			if href := getAttr(n, "href"); href != "" && !e.baseSet {
				if u, err := e.base.Parse(strings.TrimSpace(href)); err == nil {
					e.base = u
					e.baseSet = true
				}
			}
		case "a", "area":
			if link := e.resolve(getAttr(n, "href")); link != "" {
				if _, dup := e.seen[link]; !dup {
					e.seen[link] = struct{}{}
					e.links = append(e.links, link)
				}
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c)
	}
}

// resolve turns href into an absolute URL, or "" when it must be skipped.
func (e *linkExtractor) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := e.base.Parse(href)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
