package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_Scrape_FirstSuccess(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, page: &Page{URL: "https://acme.com", Source: "primary"}}
	s2 := &mockScraper{name: "fallback", supports: true}

	page, err := NewChain(s1, s2).Scrape(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "primary", page.Source)
	assert.Zero(t, s2.calls)
}

func TestChain_Scrape_FallbackOnError(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, err: errors.New("failed")}
	s2 := &mockScraper{name: "fallback", supports: true, page: &Page{URL: "https://acme.com", Source: "fallback"}}

	page, err := NewChain(s1, s2).Scrape(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "fallback", page.Source)
}

func TestChain_Scrape_SkipsUnsupported(t *testing.T) {
	s1 := &mockScraper{name: "open_breaker", supports: false}
	s2 := &mockScraper{name: "local", supports: true, page: &Page{Source: "local"}}

	page, err := NewChain(s1, nil, s2).Scrape(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "local", page.Source)
	assert.Zero(t, s1.calls)
}

func TestChain_Scrape_AllFail(t *testing.T) {
	s1 := &mockScraper{name: "a", supports: true, err: errors.New("a failed")}
	s2 := &mockScraper{name: "b", supports: true, err: errors.New("b failed")}

	_, err := NewChain(s1, s2).Scrape(context.Background(), "https://acme.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all scrapers failed")
	assert.Contains(t, err.Error(), "b failed")
}

func TestChain_Scrape_NoScrapers(t *testing.T) {
	c := NewChain()
	assert.Zero(t, c.Len())

	_, err := c.Scrape(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suitable scraper")
}
