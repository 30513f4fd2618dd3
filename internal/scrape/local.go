package scrape

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/market-intel/internal/signals"
)

const (
	// SourceLocal names pages fetched directly over HTTP.
	SourceLocal = "local_http"

	maxBodyBytes = 1 << 20
	userAgent    = "Mozilla/5.0 (compatible; MarketIntelBot/1.0)"
)

// LocalScraper fetches HTML via net/http, decodes it to UTF-8, detects
// blocks and converts it to text. Blocked pages fall through to the next
// scraper in the chain.
type LocalScraper struct {
	client *http.Client
}

// NewLocalScraper creates a LocalScraper with sensible defaults.
func NewLocalScraper() *LocalScraper {
	return NewLocalScraperWithClient(&http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	})
}

// NewLocalScraperWithClient uses hc for requests.
func NewLocalScraperWithClient(hc *http.Client) *LocalScraper {
	return &LocalScraper{client: hc}
}

func (l *LocalScraper) Name() string           { return SourceLocal }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL, detects blocks and extracts title and text.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if block := DetectBlock(resp.StatusCode, resp.Header, body); block != BlockNone {
		return nil, eris.Wrap(&BlockedError{URL: targetURL, Block: block}, "local_http")
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if len(bytes.TrimSpace(body)) < 100 {
		return nil, eris.New("local_http: empty page")
	}

	html := decode(body, resp.Header.Get("Content-Type"))
	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Page{
		URL:        finalURL,
		Title:      signals.Title(html),
		HTML:       html,
		Text:       signals.HTMLToText(html),
		StatusCode: resp.StatusCode,
		Source:     SourceLocal,
	}, nil
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?([a-zA-Z0-9_\-]+)`)

// decode converts body to UTF-8 using the charset from the Content-Type
// header or a <meta> tag. Unknown charsets are passed through unchanged.
func decode(body []byte, contentType string) string {
	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}
	if label == "" {
		head := body
		if len(head) > 2048 {
			head = head[:2048]
		}
		if m := metaCharsetRe.FindSubmatch(head); m != nil {
			label = string(m[1])
		}
	}
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == "utf-8" || label == "utf8" {
		return string(body)
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		zap.L().Debug("local_http: unknown charset", zap.String("charset", label))
		return string(body)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(out)
}
