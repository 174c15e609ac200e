// Package webmeta fetches lightweight page metadata from a POI's website.
//
// The pipeline uses it to fill an empty description column from the site's
// <meta name="description"> or <title>. Enrichment is best-effort: any
// network, parse, or content problem yields an empty Meta and the import
// continues without it.
package webmeta

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Meta is the extracted page metadata. Either field may be empty.
type Meta struct {
	Title       string
	Description string
}

// maxBodyBytes caps how much of a page is read; metadata lives in <head>.
const maxBodyBytes = 256 << 10

// Client fetches page metadata over HTTP.
type Client struct {
	// HTTPClient overrides the default client (used by tests). Nil means a
	// client with a 5s total timeout.
	HTTPClient *http.Client

	// UserAgent is sent on every request when non-empty.
	UserAgent string
}

var defaultClient = &http.Client{Timeout: 5 * time.Second}

// Fetch retrieves url and extracts title/description.
//
// Edge cases:
//   - Non-2xx responses, network errors, and unparsable HTML all return the
//     zero Meta and a nil error; enrichment never fails an import.
//   - Only the first 256 KiB of the body are read.
func (c *Client) Fetch(ctx context.Context, url string) Meta {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = defaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Meta{}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return Meta{}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Meta{}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Meta{}
	}
	return Extract(string(body))
}

// Extract pulls title and meta description out of an HTML document.
//
// Missing elements simply produce empty fields; Extract never errors.
func Extract(html string) Meta {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Meta{}
	}

	var m Meta
	m.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find(`meta[name="description"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if v, ok := sel.Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				m.Description = v
				return false
			}
		}
		return true
	})
	if m.Description == "" {
		// Open Graph description is a common fallback.
		if v, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok {
			m.Description = strings.TrimSpace(v)
		}
	}
	return m
}

// BestDescription returns the description if present, else the title.
func (m Meta) BestDescription() string {
	if m.Description != "" {
		return m.Description
	}
	return m.Title
}
