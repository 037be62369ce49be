package remote

import (
	"context"
	"time"
)

const (
	// DefaultPollInterval matches the cadence the hosted service tolerates
	// without rate limiting.
	DefaultPollInterval = 3 * time.Second
	// DefaultPollTimeout bounds a single operation poll. The service gives no
	// latency guarantee, so an unbounded wait is never acceptable.
	DefaultPollTimeout = 5 * time.Minute
)

// Poll invokes check at a fixed interval until it reports done, the time
// budget is exhausted, or ctx is canceled. The first check runs immediately.
// Once check reports done (or fails), no further calls are made.
func Poll(ctx context.Context, op string, interval, timeout time.Duration, check func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	start := time.Now()
	deadline := start.Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if time.Now().After(deadline) {
			return &TimeoutError{Op: op, Elapsed: time.Since(start)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
