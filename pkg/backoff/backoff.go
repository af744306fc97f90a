package backoff

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Schedule describes an exponential backoff curve.
type Schedule struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultSchedule is the curve used for balancer reconnects: 1s doubling up
// to a 60s cap.
func DefaultSchedule() Schedule {
	return Schedule{
		Initial:    1 * time.Second,
		Max:        60 * time.Second,
		Multiplier: 2.0,
	}
}

// Delay returns the wait before the given attempt (0-based):
// min(initial * multiplier^attempt, max).
func (s Schedule) Delay(attempt int) time.Duration {
	delay := float64(s.Initial) * math.Pow(s.Multiplier, float64(attempt))
	if delay > float64(s.Max) {
		return s.Max
	}
	return time.Duration(delay)
}

// Retry runs fn up to maxAttempts times, sleeping the schedule's delay
// between attempts. A maxAttempts of 0 means retry forever.
func Retry(ctx context.Context, s Schedule, maxAttempts int, fn func() error) error {
	var lastErr error
	for attempt := 0; maxAttempts == 0 || attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled during wait: %w", ctx.Err())
		case <-time.After(s.Delay(attempt)):
		}
	}
	return fmt.Errorf("max attempts (%d) exceeded: %w", maxAttempts, lastErr)
}
