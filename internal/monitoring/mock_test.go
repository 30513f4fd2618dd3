package monitoring

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/market-intel/internal/model"
)

type mockRuns struct {
	mock.Mock
}

func (m *mockRuns) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}
