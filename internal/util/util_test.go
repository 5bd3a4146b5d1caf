package util

import (
	"context"
	"errors"
	"sync/atomic"
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

func TestForEachVisitsAllIndices(t *testing.T) {
	const n = 100
	visited := make([]int32, n)

	err := ForEach(context.Background(), 4, n, func(i int) {
		atomic.AddInt32(&visited[i], 1)
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}

	for i, count := range visited {
		if count != 1 {
			t.Errorf("index %d visited %d times, want 1", i, count)
		}
	}
}

func TestForEachCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ForEach(ctx, 2, 10, func(int) {})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ForEach on cancelled context = %v, want context.Canceled", err)
	}
}

func TestMidnightET(t *testing.T) {
	// 2024-03-08 14:30 UTC is 09:30 in New York (EST, UTC-5); its trading
	// day anchor is midnight New York, 05:00 UTC.
	in := time.Date(2024, 3, 8, 14, 30, 0, 0, time.UTC)
	want := time.Date(2024, 3, 8, 5, 0, 0, 0, time.UTC).Unix()
	if got := MidnightET(in); got != want {
		t.Errorf("MidnightET = %d, want %d", got, want)
	}
	// Idempotent: an anchor maps to itself.
	if got := MidnightET(time.Unix(want, 0)); got != want {
		t.Errorf("MidnightET(anchor) = %d, want %d", got, want)
	}
}

func TestESTDate(t *testing.T) {
	ts := time.Date(2024, 3, 8, 5, 0, 0, 0, time.UTC).Unix()
	if got, want := ESTDate(ts), "2024-03-08 00:00:00"; got != want {
		t.Errorf("ESTDate = %q, want %q", got, want)
	}
}

func TestForEachZeroItems(t *testing.T) {
	if err := ForEach(context.Background(), 4, 0, func(int) {
		t.Error("fn called for empty input")
	}); err != nil {
		t.Errorf("ForEach(0 items) = %v, want nil", err)
	}
}
