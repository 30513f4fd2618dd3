// Package scrape fetches a single business page when a run is given only a
// URL. Scrapers are tried in order by a Chain; the first usable page wins.
package scrape

import (
	"context"
)

// Page is a fetched page. HTML is empty when the source only returns text,
// as Jina Reader does.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	HTML       string `json:"html,omitempty"`
	Text       string `json:"text"`
	StatusCode int    `json:"status_code"`
	Source     string `json:"source"`
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Page, error)
	Name() string
	Supports(url string) bool
}
