package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
}

func TestDaysBetween(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 16, 0, 0, 0, time.UTC)

	if got := DaysBetween(start, end); got != 365 {
		t.Errorf("DaysBetween = %d, want 365", got)
	}
	if got := DaysBetween(end, start); got != -365 {
		t.Errorf("DaysBetween reversed = %d, want -365", got)
	}
	if got := DaysBetween(start, start); got != 0 {
		t.Errorf("DaysBetween same day = %d, want 0", got)
	}
}

func TestEndOfDay(t *testing.T) {
	ts := time.Date(2024, 6, 15, 10, 45, 12, 0, time.UTC)
	got := EndOfDay(ts)
	want := time.Date(2024, 6, 15, 23, 59, 59, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("EndOfDay = %v, want %v", got, want)
	}
}
