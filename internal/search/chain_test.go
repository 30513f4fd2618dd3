package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChain_FirstNonEmptyWins(t *testing.T) {
	first, second, third := &mockSearcher{}, &mockSearcher{}, &mockSearcher{}
	first.On("Search", mock.Anything, "q").Return(nil, errors.New("down"))
	second.On("Search", mock.Anything, "q").Return(hit("q", "https://b.test"), nil)

	resp, err := Chain{first, second, third}.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "https://b.test", resp.Organic[0].Link)
	third.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestChain_EmptyFallsThrough(t *testing.T) {
	first, second := &mockSearcher{}, &mockSearcher{}
	first.On("Search", mock.Anything, "q").Return(empty("q"), nil)
	second.On("Search", mock.Anything, "q").Return(empty("q"), nil)

	resp, err := Chain{first, second}.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, resp.Empty())
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestChain_AllFail(t *testing.T) {
	first, second := &mockSearcher{}, &mockSearcher{}
	first.On("Search", mock.Anything, "q").Return(nil, errors.New("one"))
	second.On("Search", mock.Anything, "q").Return(nil, errors.New("two"))

	_, err := Chain{first, second}.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 providers failed")
}

func TestChain_Empty(t *testing.T) {
	resp, err := Chain{}.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, resp.Empty())
}
