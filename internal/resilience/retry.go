package resilience

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, doubling the delay between failed
// attempts starting at initial. The retryable predicate decides whether an
// error is worth another attempt; non-retryable errors are returned
// immediately. Context cancellation ends the loop between attempts.
func Retry(ctx context.Context, attempts int, initial time.Duration, retryable func(error) bool, fn func(ctx context.Context) error) error {
	delay := initial
	var err error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}

	return err
}
