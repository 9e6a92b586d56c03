package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a deadline of timeout. A zero timeout runs fn
// directly. When the deadline passes first the result of fn is discarded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	expired := fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	tctx, cancel := context.WithTimeoutCause(ctx, timeout, expired)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()
	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return context.Cause(tctx)
	}
}
