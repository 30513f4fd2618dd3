package mcpserver

import (
	"context"
	"encoding/json"

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

type mockReports struct {
	mock.Mock
}

func (m *mockReports) Read(ctx context.Context, name string) (json.RawMessage, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *mockReports) GetReport(ctx context.Context, runID string) (*model.Report, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}
