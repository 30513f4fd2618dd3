package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/pkg/serper"
)

// Serper adapts the Serper Google Search API.
type Serper struct {
	client  serper.Client
	num     int
	country string
}

// NewSerper wraps client. num and country are sent with every request when set.
func NewSerper(client serper.Client, num int, country string) *Serper {
	return &Serper{client: client, num: num, country: country}
}

// Search runs query through Serper.
func (s *Serper) Search(ctx context.Context, query string) (*model.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return empty(query), nil
	}
	resp, err := s.client.Search(ctx, serper.SearchRequest{Query: query, Num: s.num, Country: s.country})
	if err != nil {
		return nil, eris.Wrapf(err, "search: serper %q", query)
	}

	out := empty(query)
	for i, o := range resp.Organic {
		pos := o.Position
		if pos <= 0 {
			pos = i + 1
		}
		out.Organic = append(out.Organic, model.OrganicResult{
			Title:    o.Title,
			Link:     o.Link,
			Snippet:  o.Snippet,
			Position: pos,
		})
	}
	if kg := resp.KnowledgeGraph; kg != nil && kg.Title != "" {
		out.KnowledgeGraph = &model.KnowledgeGraph{
			Title:       kg.Title,
			Type:        kg.Type,
			Website:     kg.Website,
			Description: kg.Description,
			Rating:      kg.Rating,
			RatingCount: kg.RatingCount,
			Attributes:  kg.Attributes,
		}
	}
	return out, nil
}
