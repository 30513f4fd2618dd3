// Package google is a client for the Google Places (New) Text Search API.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/resilience"
)

const (
	defaultBaseURL    = "https://places.googleapis.com/v1"
	defaultMaxResults = 5
	maxBody           = 4 << 20
)

// Business statuses reported by Places.
const (
	StatusOperational       = "OPERATIONAL"
	StatusClosedTemporarily = "CLOSED_TEMPORARILY"
	StatusClosedPermanently = "CLOSED_PERMANENTLY"
)

// fieldMask is sent as X-Goog-FieldMask. Places bills by the fields asked for,
// so keep it to what a knowledge panel shows.
var fieldMask = strings.Join([]string{
	"places.id",
	"places.displayName",
	"places.primaryTypeDisplayName",
	"places.types",
	"places.formattedAddress",
	"places.nationalPhoneNumber",
	"places.websiteUri",
	"places.googleMapsUri",
	"places.businessStatus",
	"places.editorialSummary",
	"places.rating",
	"places.userRatingCount",
}, ",")

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, query string) (*TextSearchResponse, error)
}

// TextSearchResponse is the response from Places Text Search.
type TextSearchResponse struct {
	Places []Place `json:"places"`
}

// Place is one Text Search hit, limited to the fields in fieldMask.
type Place struct {
	ID                     string        `json:"id"`
	DisplayName            LocalizedText `json:"displayName"`
	PrimaryTypeDisplayName LocalizedText `json:"primaryTypeDisplayName"`
	Types                  []string      `json:"types"`
	FormattedAddress       string        `json:"formattedAddress"`
	NationalPhoneNumber    string        `json:"nationalPhoneNumber"`
	WebsiteURI             string        `json:"websiteUri"`
	GoogleMapsURI          string        `json:"googleMapsUri"`
	BusinessStatus         string        `json:"businessStatus"`
	EditorialSummary       LocalizedText `json:"editorialSummary"`
	Rating                 float64       `json:"rating"`
	UserRatingCount        int           `json:"userRatingCount"`
}

// Closed reports whether Places marks the business as permanently closed.
func (p Place) Closed() bool {
	return p.BusinessStatus == StatusClosedPermanently
}

// LocalizedText is a text value with its language.
type LocalizedText struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// APIError is a non-200 answer from the Places API.
type APIError struct {
	StatusCode int
	Status     string // e.g. PERMISSION_DENIED
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("google: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("google: HTTP %d: %s", e.StatusCode, e.Message)
}

// Option configures the client.
type Option func(*placesClient)

// WithBaseURL overrides the API base URL. Empty keeps the default.
func WithBaseURL(u string) Option {
	return func(c *placesClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *placesClient) { c.http = hc }
}

// WithMaxResults caps the number of places returned.
func WithMaxResults(n int) Option {
	return func(c *placesClient) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithRegion biases results toward a CLDR region code such as "us".
func WithRegion(code string) Option {
	return func(c *placesClient) { c.region = strings.ToLower(code) }
}

// WithLanguage sets the language for display names and summaries.
func WithLanguage(code string) Option {
	return func(c *placesClient) { c.language = code }
}

type placesClient struct {
	apiKey     string
	baseURL    string
	maxResults int
	region     string
	language   string
	http       *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &placesClient{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		maxResults: defaultMaxResults,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchTextBody struct {
	TextQuery      string `json:"textQuery"`
	PageSize       int    `json:"pageSize,omitempty"`
	RegionCode     string `json:"regionCode,omitempty"`
	LanguageCode   string `json:"languageCode,omitempty"`
	IncludePureSAB bool   `json:"includePureServiceAreaBusinesses,omitempty"`
}

// TextSearch runs a free-text place query. Service-area businesses without a
// storefront are included since many small operators only exist that way.
func (c *placesClient) TextSearch(ctx context.Context, query string) (*TextSearchResponse, error) {
	payload, err := json.Marshal(searchTextBody{
		TextQuery:      query,
		PageSize:       c.maxResults,
		RegionCode:     c.region,
		LanguageCode:   c.language,
		IncludePureSAB: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "google: encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "google: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "google: text search %q", query)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := parseAPIError(resp.StatusCode, raw)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var out TextSearchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "google: decode response")
	}
	return &out, nil
}

// parseAPIError reads the google.rpc.Status envelope, falling back to the raw body.
func parseAPIError(code int, raw []byte) *APIError {
	var env struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: code}
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Status = env.Error.Status
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(code)
	}
	return apiErr
}
