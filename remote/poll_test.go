package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollStopsAtFirstDone(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), "test op", time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls, "no polls may follow a done report")
}

func TestPollFirstCheckRunsImmediately(t *testing.T) {
	start := time.Now()
	err := Poll(context.Background(), "test op", time.Hour, time.Hour, func(ctx context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestPollPropagatesCheckError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Poll(context.Background(), "test op", time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		calls++
		return false, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestPollTimesOut(t *testing.T) {
	err := Poll(context.Background(), "slow ingest", time.Millisecond, 10*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, "slow ingest", timeoutErr.Op)
}

func TestPollHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Poll(ctx, "test op", time.Millisecond, time.Minute, func(ctx context.Context) (bool, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, calls, "cancellation must stop the loop before the next tick")
}

func TestPollZeroConfigUsesDefaults(t *testing.T) {
	// Defaults would poll for minutes; a first-call done must still return
	// straight away.
	err := Poll(context.Background(), "test op", 0, 0, func(ctx context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
}
