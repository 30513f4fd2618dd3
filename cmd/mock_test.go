package main

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/market-intel/internal/model"
)

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Execute(ctx context.Context, in model.Input) *model.Report {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*model.Report)
}
