package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(capacity int, interval time.Duration) (*rateLimiter, *manualClock) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := newRateLimiter(capacity, interval)
	rl.now = clock.Now
	rl.lastCheck = clock.Now()
	return rl, clock
}

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl, _ := newTestLimiter(3, time.Second)

	for i := range 3 {
		require.True(t, rl.allow(), "token %d", i)
	}
	require.False(t, rl.allow())
}

func TestRateLimiter_Refill(t *testing.T) {
	rl, clock := newTestLimiter(4, time.Second)
	for range 4 {
		require.True(t, rl.allow())
	}
	require.False(t, rl.allow())

	clock.Advance(250 * time.Millisecond)
	require.True(t, rl.allow(), "a quarter interval refills one token")
	require.False(t, rl.allow())

	clock.Advance(time.Hour)
	for range 4 {
		require.True(t, rl.allow())
	}
	require.False(t, rl.allow(), "refill is capped at capacity")
}

func TestRateLimiter_InvalidArguments(t *testing.T) {
	rl := newRateLimiter(0, 0)
	require.Equal(t, 1.0, rl.capacity)
	require.Equal(t, 1.0, rl.rate)
}
