package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffPolicy(t *testing.T) {
	require := require.New(t)

	minDelay := 10 * time.Millisecond
	maxDelay := time.Second
	backoff := NewBackoffPolicy(minDelay, maxDelay)

	for retry := 0; retry < 100; retry++ {
		d := backoff(retry)
		require.GreaterOrEqual(d, minDelay)
		require.LessOrEqual(d, maxDelay)
	}

	d := backoff(2)
	require.GreaterOrEqual(d, 40*time.Millisecond)
	require.LessOrEqual(d, 48*time.Millisecond)

	require.Equal(maxDelay, backoff(1000))
	require.Equal(minDelay, NewBackoffPolicy(minDelay, 0)(5))
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	begin := time.Now()
	err := Sleep(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(begin), time.Second)
}
