package scrape

import (
	"context"
	"net/http"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/market-intel/pkg/firecrawl"
	"github.com/sells-group/market-intel/pkg/jina"
)

type mockJina struct {
	mock.Mock
	// headers holds the reader headers of the last Read.
	headers http.Header
}

func (m *mockJina) Read(ctx context.Context, targetURL string, opts ...jina.ReadOption) (*jina.ReadResponse, error) {
	m.headers = http.Header{}
	for _, o := range opts {
		o(m.headers)
	}
	args := m.Called(ctx, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.ReadResponse), args.Error(1)
}

func (m *mockJina) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.SearchResponse), args.Error(1)
}

type mockFirecrawl struct {
	mock.Mock
}

func (m *mockFirecrawl) Scrape(ctx context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.ScrapeResponse), args.Error(1)
}

// mockScraper implements Scraper for testing.
type mockScraper struct {
	name     string
	supports bool
	page     *Page
	err      error
	calls    int
}

func (m *mockScraper) Name() string           { return m.name }
func (m *mockScraper) Supports(_ string) bool { return m.supports }
func (m *mockScraper) Scrape(_ context.Context, _ string) (*Page, error) {
	m.calls++
	return m.page, m.err
}
