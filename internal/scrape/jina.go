package scrape

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/resilience"
	"github.com/sells-group/market-intel/pkg/jina"
)

// SourceJina names pages read through Jina Reader.
const SourceJina = "jina"

// JinaAdapter reads pages through Jina Reader. Jina returns markdown only,
// so the page has text and no HTML. The reader's link summary is appended
// to the text so contact scanning still sees footer links.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.Breaker
}

// NewJinaAdapter creates a JinaAdapter. Three failures within 30s stop
// reads for a minute.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{
		client:  client,
		breaker: resilience.NewBreaker(SourceJina, 3, 30*time.Second, time.Minute),
	}
}

func (j *JinaAdapter) Name() string { return SourceJina }

// Supports is false while the breaker is open.
func (j *JinaAdapter) Supports(_ string) bool { return !j.breaker.Open() }

func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	if j.breaker.Open() {
		return nil, eris.New("jina: circuit breaker open")
	}

	resp, err := j.client.Read(ctx, targetURL, jina.WithLinks())
	if err != nil {
		j.breaker.Failure()
		return nil, err
	}
	if resp == nil || (resp.Code != 0 && resp.Code != 200) || IsChallengeText(resp.Data.Content) {
		j.breaker.Failure()
		return nil, eris.New("jina: response unusable")
	}
	j.breaker.Success()

	d := resp.Data
	page := &Page{
		URL:        d.URL,
		Title:      d.Title,
		Text:       d.Content + linkSection(d.Links),
		StatusCode: 200,
		Source:     SourceJina,
	}
	if page.URL == "" {
		page.URL = targetURL
	}
	return page, nil
}

// linkSection renders the reader's link summary as a markdown list in a
// stable order. Empty when there are no links.
func linkSection(links map[string]string) string {
	if len(links) == 0 {
		return ""
	}
	lines := make([]string, 0, len(links))
	for label, href := range links {
		lines = append(lines, "- ["+strings.TrimSpace(label)+"]("+href+")")
	}
	sort.Strings(lines)
	return "\n\n## Links\n" + strings.Join(lines, "\n")
}
