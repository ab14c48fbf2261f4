package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()

	_, ok, err := c.Get(ctx, "route:13.05,80.25|13.01,80.20")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "route:13.05,80.25|13.01,80.20", []byte(`{"distance_meters":8000}`), time.Minute))

	b, ok, err := c.Get(ctx, "route:13.05,80.25|13.01,80.20")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"distance_meters":8000}`), b)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:routing", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:routing", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:routing", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}
