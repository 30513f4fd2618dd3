package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testBreaker(threshold int) (*Breaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("test", threshold, time.Second, time.Minute)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_TripsAndRecovers(t *testing.T) {
	b, now := testBreaker(2)

	b.Failure()
	assert.False(t, b.Open())
	b.Failure()
	assert.True(t, b.Open())

	*now = now.Add(59 * time.Second)
	assert.True(t, b.Open())
	*now = now.Add(2 * time.Second)
	assert.False(t, b.Open())

	// The count restarts after cooling down.
	b.Failure()
	assert.False(t, b.Open())
}

func TestBreaker_WindowResets(t *testing.T) {
	b, now := testBreaker(2)

	b.Failure()
	*now = now.Add(2 * time.Second)
	b.Failure()
	assert.False(t, b.Open())

	b.Failure()
	assert.True(t, b.Open())
}

func TestBreaker_SuccessClears(t *testing.T) {
	b, _ := testBreaker(2)

	b.Failure()
	b.Success()
	b.Failure()
	assert.False(t, b.Open())
}

func TestNewBreaker_MinThreshold(t *testing.T) {
	b, _ := testBreaker(0)
	b.Failure()
	assert.True(t, b.Open())
}
