package search

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/pkg/jina"
	"github.com/sells-group/market-intel/pkg/serper"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string) (*model.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SearchResponse), args.Error(1)
}

type mockSerper struct {
	mock.Mock
}

func (m *mockSerper) Search(ctx context.Context, req serper.SearchRequest) (*serper.SearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*serper.SearchResponse), args.Error(1)
}

type mockJina struct {
	mock.Mock
}

func (m *mockJina) Read(ctx context.Context, targetURL string, _ ...jina.ReadOption) (*jina.ReadResponse, error) {
	args := m.Called(ctx, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.ReadResponse), args.Error(1)
}

func (m *mockJina) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	args := m.Called(ctx, query, len(opts))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.SearchResponse), args.Error(1)
}

func hit(query, link string) *model.SearchResponse {
	return &model.SearchResponse{Query: query, Organic: []model.OrganicResult{{Title: link, Link: link, Position: 1}}}
}
