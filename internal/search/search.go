// Package search is the web-search collaborator used by the presence and
// competitor phases. Every Searcher returns results in the shape of
// model.SearchResponse; a searcher without credentials returns no results
// instead of failing.
package search

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
)

// Searcher runs one web query.
type Searcher interface {
	Search(ctx context.Context, query string) (*model.SearchResponse, error)
}

// Noop is the searcher used when no search credential is configured.
type Noop struct{}

// Search returns an empty result set.
func (Noop) Search(_ context.Context, query string) (*model.SearchResponse, error) {
	return empty(query), nil
}

func empty(query string) *model.SearchResponse {
	return &model.SearchResponse{Query: query, Organic: []model.OrganicResult{}}
}

// RunQueries runs queries one after another and returns the non-empty
// responses in query order. A failing query is logged and skipped; the
// queries that were attempted are returned as well.
func RunQueries(ctx context.Context, s Searcher, queries []string) (results []model.SearchResponse, ran []string) {
	results = []model.SearchResponse{}
	ran = []string{}
	if s == nil {
		return results, ran
	}
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		ran = append(ran, q)
		resp, err := s.Search(ctx, q)
		if err != nil {
			zap.L().Warn("search: query failed", zap.String("query", q), zap.Error(err))
			continue
		}
		if resp.Empty() {
			continue
		}
		if resp.Query == "" {
			resp.Query = q
		}
		results = append(results, *resp)
	}
	return results, ran
}
