package scrape

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/signals"
)

// SourceHeadless names pages rendered in headless Chrome.
const SourceHeadless = "headless_chrome"

// HeadlessScraper renders a page in headless Chrome so script-built sites
// yield their final DOM. Each call starts and stops its own browser.
type HeadlessScraper struct {
	timeout time.Duration
	settle  time.Duration
	opts    []chromedp.ExecAllocatorOption
}

// NewHeadlessScraper creates a scraper with a per-page timeout. settle is
// how long to wait after the body is ready for late scripts.
func NewHeadlessScraper(timeout, settle time.Duration) *HeadlessScraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	return &HeadlessScraper{timeout: timeout, settle: settle, opts: opts}
}

func (h *HeadlessScraper) Name() string           { return SourceHeadless }
func (h *HeadlessScraper) Supports(_ string) bool { return true }

// Scrape navigates to targetURL and captures the rendered document.
func (h *HeadlessScraper) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, h.opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var (
		title    string
		html     string
		location string
	)
	actions := []chromedp.Action{
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if h.settle > 0 {
		actions = append(actions, chromedp.Sleep(h.settle))
	}
	actions = append(actions,
		chromedp.Title(&title),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return nil, eris.Wrapf(err, "headless: render %s", targetURL)
	}

	text := signals.HTMLToText(html)
	if IsChallengeText(text) {
		return nil, eris.New("headless: page unusable")
	}
	if location == "" {
		location = targetURL
	}
	return &Page{
		URL:        location,
		Title:      title,
		HTML:       html,
		Text:       text,
		StatusCode: 200,
		Source:     SourceHeadless,
	}, nil
}
