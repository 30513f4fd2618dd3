package llm

import (
	"context"
	"strings"

	"github.com/stretchr/testify/mock"
)

type mockProvider struct {
	mock.Mock
	name   string
	prefix string
}

func newMockProvider(name, prefix string) *mockProvider {
	return &mockProvider{name: name, prefix: prefix}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Supports(model string) bool {
	return strings.HasPrefix(model, m.prefix)
}

func (m *mockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*Response), args.Error(1)
	}
	return nil, args.Error(1)
}
