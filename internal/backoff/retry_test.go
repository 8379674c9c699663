package backoff

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errTemporary = errors.New("temporary error")

func fastPolicy() Policy {
	return Policy{Initial: time.Millisecond, Max: 10 * time.Millisecond, Factor: 2, Jitter: 0}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	var attempts int32
	result, err := Retry(context.Background(), fastPolicy(), 3, func(attempt int) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v, want nil", err)
	}
	if result.Value != "ok" {
		t.Errorf("Retry() value = %q, want ok", result.Value)
	}
	if result.Attempts != 1 {
		t.Errorf("Retry() attempts = %d, want 1", result.Attempts)
	}
}

func TestRetry_SucceedsAfterRetries(t *testing.T) {
	var attempts int32
	result, err := Retry(context.Background(), fastPolicy(), 5, func(attempt int) (int, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return 0, errTemporary
		}
		return int(n), nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v, want nil", err)
	}
	if result.Value != 3 {
		t.Errorf("Retry() value = %d, want 3", result.Value)
	}
	if result.Attempts != 3 {
		t.Errorf("Retry() attempts = %d, want 3", result.Attempts)
	}
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	var attempts int32
	result, err := Retry(context.Background(), fastPolicy(), 3, func(attempt int) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", errTemporary
	})
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Errorf("Retry() error = %v, want ErrAttemptsExhausted", err)
	}
	if !errors.Is(err, errTemporary) {
		t.Errorf("Retry() error should wrap the last failure, got %v", err)
	}
	if result.Attempts != 3 {
		t.Errorf("Retry() attempts = %d, want 3", result.Attempts)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("op called %d times, want 3", attempts)
	}
}

func TestRetry_PermanentErrorStopsImmediately(t *testing.T) {
	errRejected := errors.New("bad request")
	var attempts int32
	result, err := Retry(context.Background(), fastPolicy(), 5, func(attempt int) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", Permanent(errRejected)
	})
	if !errors.Is(err, errRejected) {
		t.Errorf("Retry() error = %v, want errRejected", err)
	}
	if errors.Is(err, ErrAttemptsExhausted) {
		t.Error("permanent failure should not report exhausted attempts")
	}
	if result.Attempts != 1 {
		t.Errorf("Retry() attempts = %d, want 1", result.Attempts)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, fastPolicy(), 3, func(attempt int) (string, error) {
		t.Fatal("op should not run with cancelled context")
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
}

func TestIsPermanent(t *testing.T) {
	if IsPermanent(errTemporary) {
		t.Error("plain error should not be permanent")
	}
	if !IsPermanent(Permanent(errTemporary)) {
		t.Error("wrapped error should be permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestPolicy_DelayGrowthAndCap(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2, Jitter: 0}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 500 * time.Millisecond}, // capped
	}
	for _, tc := range cases {
		if got := p.delayWithRand(tc.attempt, 0); got != tc.want {
			t.Errorf("Delay(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestPolicy_JitterDeterministic(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.5}
	// base 100ms + 100ms*0.5*0.5 = 125ms
	if got := p.delayWithRand(1, 0.5); got != 125*time.Millisecond {
		t.Errorf("delayWithRand() = %v, want 125ms", got)
	}
}
