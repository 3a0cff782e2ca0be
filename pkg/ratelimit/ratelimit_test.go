package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucket_AllowAndRefill(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tb := newTokenBucket(3, 2, clk.now)

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow())
	}
	assert.False(t, tb.Allow())
	assert.Equal(t, 0, tb.GetRemaining())
	assert.Equal(t, clk.t.Add(1500*time.Millisecond), tb.GetResetTime())

	clk.advance(500 * time.Millisecond) // +1 令牌
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clk.advance(10 * time.Second)
	assert.Equal(t, 3, tb.GetRemaining(), "capped at capacity")
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 0)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}

func TestKeyed_SeparateBuckets(t *testing.T) {
	k := NewKeyed(1, 0, time.Minute)
	defer k.Stop()

	assert.True(t, k.Allow("alice"))
	assert.False(t, k.Allow("alice"))
	assert.True(t, k.Allow("bob"))
	assert.Equal(t, 2, k.Size())
}
