package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_UnlimitedByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(ctx, "https://a.example/about"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_PacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 20, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/one"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://a.example/two"))
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestLimiter_HostsIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/"))
	require.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestLimiter_RespectsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://slow.example/"))
	require.Error(t, l.Wait(ctx, "https://slow.example/"))
}
