package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/pkg/jina"
)

const jinaSnippetChars = 300

// Jina adapts Jina AI Search. Jina returns no knowledge graph and no
// positions, so results are numbered in order.
type Jina struct {
	client  jina.Client
	country string
}

// NewJina wraps client.
func NewJina(client jina.Client, country string) *Jina {
	return &Jina{client: client, country: country}
}

// Search runs query through Jina.
func (j *Jina) Search(ctx context.Context, query string) (*model.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return empty(query), nil
	}
	var opts []jina.SearchOption
	if j.country != "" {
		opts = append(opts, jina.WithCountry(j.country))
	}
	resp, err := j.client.Search(ctx, query, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "search: jina %q", query)
	}

	out := empty(query)
	for i, r := range resp.Data {
		snippet := strings.TrimSpace(r.Description)
		if snippet == "" {
			snippet = snip(r.Content, jinaSnippetChars)
		}
		out.Organic = append(out.Organic, model.OrganicResult{
			Title:    r.Title,
			Link:     r.URL,
			Snippet:  snippet,
			Position: i + 1,
		})
	}
	return out, nil
}

func snip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
