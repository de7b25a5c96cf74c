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

func TestTokenBucket_RefillsContinuously(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tb := NewTokenBucket(2, 4)
	tb.now = clk.now
	tb.lastRefill = clk.t

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clk.advance(250 * time.Millisecond)
	assert.True(t, tb.Allow(), "a quarter second at 4/s refills one token")
	assert.False(t, tb.Allow())

	clk.advance(10 * time.Second)
	assert.Equal(t, 2, tb.Remaining(), "capped at capacity")
}

func TestTokenBucket_WaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket(1, 0)
	require.NoError(t, tb.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}

func TestTokenBucket_WaitBlocksUntilRefill(t *testing.T) {
	tb := NewTokenBucket(1, 50)
	require.True(t, tb.Allow())

	start := time.Now()
	require.NoError(t, tb.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestManager(t *testing.T) {
	m := NewManager(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// 交易端点突发为 1：第二次必须等待补充（1/s），超过 ctx 截止时间
	require.NoError(t, m.Wait(ctx, EndpointTx))
	require.ErrorIs(t, m.Wait(ctx, EndpointTx), context.DeadlineExceeded)

	// 未知端点共用读令牌桶，读桶容量 1 已被第一次消耗
	require.NoError(t, m.Wait(context.Background(), "gateway:other"))
	short, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	require.ErrorIs(t, m.Wait(short, EndpointRead), context.DeadlineExceeded)
}
