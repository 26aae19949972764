package provision

import (
	"context"
	"time"
)

// pollUntil calls attempt up to attempts times, sleeping delay between
// failures, and reports whether any call succeeded. It returns the context
// error if cancelled while waiting.
func pollUntil(ctx context.Context, attempts int, delay time.Duration, attempt func(ctx context.Context) bool) (bool, error) {
	for i := 0; i < attempts; i++ {
		if attempt(ctx) {
			return true, nil
		}
		if i == attempts-1 {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return false, err
		}
	}
	return false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
