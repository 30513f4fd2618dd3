// Package jina is a client for the Jina AI Reader (r.jina.ai) and Search
// (s.jina.ai) endpoints.
package jina

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/resilience"
)

const (
	defaultReaderURL = "https://r.jina.ai"
	defaultSearchURL = "https://s.jina.ai"
	maxBody          = 16 << 20
)

// Client defines the Jina AI operations.
type Client interface {
	// Read renders a URL and returns it as markdown.
	Read(ctx context.Context, targetURL string, opts ...ReadOption) (*ReadResponse, error)
	// Search runs a web query. A query with no hits returns an empty response.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// ReadResponse is the reader envelope.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData is one rendered page.
type ReadData struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	URL         string            `json:"url"`
	Content     string            `json:"content"`
	Links       map[string]string `json:"links,omitempty"` // anchor text -> href
	Usage       Usage             `json:"usage"`
}

// Usage reports tokens billed for a call.
type Usage struct {
	Tokens int `json:"tokens"`
}

// SearchResponse is the search envelope.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is a single search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// APIError is a non-transient HTTP failure.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jina: HTTP %d: %s", e.StatusCode, e.Body)
}

// ReadOption tunes a single Read call through reader request headers.
type ReadOption func(http.Header)

// WithLinks asks the reader to list every link on the page in Data.Links.
func WithLinks() ReadOption {
	return func(h http.Header) { h.Set("X-With-Links-Summary", "true") }
}

// WithTargetSelector limits extraction to elements matching a CSS selector.
func WithTargetSelector(sel string) ReadOption {
	return func(h http.Header) { h.Set("X-Target-Selector", sel) }
}

// WithNoCache bypasses the reader's page cache.
func WithNoCache() ReadOption {
	return func(h http.Header) { h.Set("X-No-Cache", "true") }
}

// WithPageTimeout bounds how long the reader waits for the page to render.
func WithPageTimeout(d time.Duration) ReadOption {
	return func(h http.Header) { h.Set("X-Timeout", strconv.Itoa(int(d.Seconds()))) }
}

// SearchOption narrows a search.
type SearchOption func(url.Values)

// WithSiteFilter restricts search results to a domain.
func WithSiteFilter(domain string) SearchOption {
	return func(v url.Values) { v.Set("site", domain) }
}

// WithCountry biases results toward a country code ("us", "gb").
func WithCountry(gl string) SearchOption {
	return func(v url.Values) { v.Set("gl", gl) }
}

// Option configures the client.
type Option func(*client)

// WithBaseURL sets the reader base URL. Empty keeps the default.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.readerURL = strings.TrimRight(u, "/")
		}
	}
}

// WithSearchBaseURL sets the search base URL. Empty keeps the default.
func WithSearchBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.searchURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithRetry overrides the retry policy for transient HTTP failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) { c.retry = cfg }
}

type client struct {
	apiKey    string
	readerURL string
	searchURL string
	http      *http.Client
	retry     resilience.RetryConfig
}

// NewClient creates a Jina client. An empty apiKey uses the anonymous tier.
func NewClient(apiKey string, opts ...Option) Client {
	c := &client{
		apiKey:    apiKey,
		readerURL: defaultReaderURL,
		searchURL: defaultSearchURL,
		http: &http.Client{
			Timeout: 45 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     8 * time.Second,
			Multiplier:     2,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *client) Read(ctx context.Context, targetURL string, opts ...ReadOption) (*ReadResponse, error) {
	h := http.Header{}
	h.Set("X-Return-Format", "markdown")
	for _, o := range opts {
		o(h)
	}

	var out ReadResponse
	status, err := c.getJSON(ctx, c.readerURL+"/"+targetURL, h, &out)
	if err != nil {
		return nil, eris.Wrapf(err, "jina: read %s", targetURL)
	}
	if status != http.StatusOK {
		return nil, eris.Wrapf(&APIError{StatusCode: status}, "jina: read %s", targetURL)
	}
	return &out, nil
}

func (c *client) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	params := url.Values{}
	for _, o := range opts {
		o(params)
	}
	u := c.searchURL + "/" + url.PathEscape(query)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var out SearchResponse
	status, err := c.getJSON(ctx, u, nil, &out)
	if err != nil {
		return nil, eris.Wrapf(err, "jina: search %q", query)
	}
	// Search answers 422 when a query has no results.
	if status == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: status}, nil
	}
	return &out, nil
}

// getJSON GETs u with retries and decodes a 200 body into dst. A 422 is
// returned as a status without an error so callers can treat it as empty.
func (c *client) getJSON(ctx context.Context, u string, h http.Header, dst any) (int, error) {
	type reply struct {
		status int
		body   []byte
	}
	r, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (reply, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return reply{}, eris.Wrap(err, "jina: build request")
		}
		for k, vs := range h {
			req.Header[k] = vs
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return reply{}, eris.Wrap(err, "jina: send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return reply{}, eris.Wrap(err, "jina: read body")
		}
		switch {
		case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusUnprocessableEntity:
			return reply{status: resp.StatusCode, body: raw}, nil
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
			return reply{}, resilience.NewTransientError(apiErr, resp.StatusCode)
		default:
			return reply{}, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
	})
	if err != nil {
		return 0, err
	}
	if r.status == http.StatusOK {
		if err := json.Unmarshal(r.body, dst); err != nil {
			return r.status, eris.Wrap(err, "jina: decode response")
		}
	}
	return r.status, nil
}
