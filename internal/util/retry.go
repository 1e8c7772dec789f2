package util

import (
	"context"
	"fmt"
	"time"
)

// Retry invokes fn until it succeeds, up to maxAttempts times, doubling the
// delay between attempts starting from baseDelay. The context is honoured
// while sleeping; the final failure is returned wrapped with the attempt
// count.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay << (attempt - 1)):
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}
