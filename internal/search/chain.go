package search

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
)

// Chain tries searchers in order and returns the first non-empty response.
// An empty or failed response falls through to the next searcher. Chain
// fails only when every searcher failed.
type Chain []Searcher

// Search implements Searcher.
func (c Chain) Search(ctx context.Context, query string) (*model.SearchResponse, error) {
	var errs []error
	for _, s := range c {
		resp, err := s.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "search: chain")
			}
			zap.L().Debug("search: provider failed, trying next", zap.String("query", query), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if !resp.Empty() {
			return resp, nil
		}
	}
	if len(c) > 0 && len(errs) == len(c) {
		return nil, eris.Wrapf(errs[len(errs)-1], "search: all %d providers failed", len(c))
	}
	return empty(query), nil
}
