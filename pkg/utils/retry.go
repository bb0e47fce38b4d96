package utils

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping delay between failures.
// It returns nil on the first success, the last error otherwise, and stops
// early when ctx is done. This is for bounded best-effort cleanup calls;
// webhook redelivery retries belong to the upstream provider, not here.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if i < attempts-1 && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
