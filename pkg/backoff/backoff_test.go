package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayCurve(t *testing.T) {
	s := DefaultSchedule()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second}, // capped
		{20, 60 * time.Second},
	}
	for _, tc := range cases {
		if got := s.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	s := Schedule{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1.0}

	calls := 0
	err := Retry(context.Background(), s, 5, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	s := Schedule{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1.0}

	sentinel := errors.New("always fails")
	err := Retry(context.Background(), s, 3, func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	s := Schedule{Initial: time.Hour, Max: time.Hour, Multiplier: 1.0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Retry(ctx, s, 0, func() error { return errors.New("nope") })
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if time.Since(start) > time.Second {
		t.Fatal("retry did not stop promptly on cancellation")
	}
}
