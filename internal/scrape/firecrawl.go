package scrape

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/resilience"
	"github.com/sells-group/market-intel/pkg/firecrawl"
)

// SourceFirecrawl names pages fetched through the Firecrawl scrape API.
const SourceFirecrawl = "firecrawl"

// FirecrawlAdapter fetches pages through Firecrawl, which renders
// JavaScript and rotates proxies on its side. Calls are billed, so five
// failures within a minute stop it for five minutes.
type FirecrawlAdapter struct {
	client  firecrawl.Client
	breaker *resilience.Breaker
}

// NewFirecrawlAdapter creates a FirecrawlAdapter.
func NewFirecrawlAdapter(client firecrawl.Client) *FirecrawlAdapter {
	return &FirecrawlAdapter{
		client:  client,
		breaker: resilience.NewBreaker(SourceFirecrawl, 5, time.Minute, 5*time.Minute),
	}
}

func (f *FirecrawlAdapter) Name() string           { return SourceFirecrawl }
func (f *FirecrawlAdapter) Supports(_ string) bool { return !f.breaker.Open() }

// Scrape requests markdown and HTML for one URL.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	if f.breaker.Open() {
		return nil, eris.New("firecrawl: circuit breaker open")
	}
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             targetURL,
		Formats:         []string{"markdown", "html"},
		OnlyMainContent: true,
	})
	if err != nil {
		f.breaker.Failure()
		return nil, eris.Wrap(err, "firecrawl adapter")
	}
	if !resp.Success {
		f.breaker.Failure()
		return nil, eris.Errorf("firecrawl: scrape unsuccessful: %s", resp.Error)
	}

	data := resp.Data
	if IsChallengeText(data.Markdown) {
		f.breaker.Failure()
		return nil, eris.New("firecrawl: response unusable")
	}
	f.breaker.Success()

	pageURL := data.Metadata.SourceURL
	if pageURL == "" {
		pageURL = targetURL
	}
	status := data.Metadata.StatusCode
	if status == 0 {
		status = 200
	}
	return &Page{
		URL:        pageURL,
		Title:      data.Metadata.Title,
		HTML:       data.HTML,
		Text:       data.Markdown,
		StatusCode: status,
		Source:     SourceFirecrawl,
	}, nil
}
