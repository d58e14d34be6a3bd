package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/url"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ifiokjr/verily/internal/shared"
)

type temporaryError struct {
	message   string
	temporary bool
}

func (e temporaryError) Error() string   { return e.message }
func (e temporaryError) Temporary() bool { return e.temporary }

// fastConfig never sleeps.
func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		After: func(time.Duration) <-chan time.Time {
			ch := make(chan time.Time, 1)
			ch <- time.Now()
			return ch
		},
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("expected MaxDelay=30s, got %v", cfg.MaxDelay)
	}
	if cfg.JitterStrategy != JitterDecorrelated {
		t.Errorf("expected decorrelated jitter, got %v", cfg.JitterStrategy)
	}
}

func TestDefaultRetryable(t *testing.T) {
	dial := &url.Error{Op: "Post", URL: "http://localhost", Err: &net.OpError{
		Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED},
	}}

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"temporary error", temporaryError{"temp", true}, true},
		{"non-temporary error", temporaryError{"not temp", false}, false},
		{"regular error", errors.New("regular"), false},
		{"eof", io.EOF, true},
		{"unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{"closed", net.ErrClosed, true},
		{"connection refused", dial, true},
		{"expired access token", shared.ErrAccessTokenExpired, false},
		{"revoked refresh token", fmt.Errorf("refresh: %w", shared.ErrRefreshTokenRevoked), false},
		{"not found", shared.NewNotFound("post", uuid.Nil), true},
		{"server function", shared.NewMessage(shared.KindServerFn, "connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryable(tt.err); got != tt.expected {
				t.Errorf("DefaultRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	config := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{60, 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := config.calculateDelay(tt.attempt); got != tt.expected {
				t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestApplyJitter(t *testing.T) {
	base := 100 * time.Millisecond
	cfg := Config{MaxDelay: time.Second, Rand: rand.New(rand.NewSource(1))}

	cfg.JitterStrategy = JitterNone
	if got := cfg.applyJitter(base); got != base {
		t.Errorf("no jitter: got %v", got)
	}

	for i := 0; i < 100; i++ {
		cfg.JitterStrategy = JitterFull
		if got := cfg.applyJitter(base); got < 0 || got > base {
			t.Fatalf("full jitter out of range: %v", got)
		}
		cfg.JitterStrategy = JitterDecorrelated
		if got := cfg.applyJitter(base); got < base || got >= base*3/2 {
			t.Fatalf("decorrelated jitter out of range: %v", got)
		}
	}
}

func TestDoSuccess(t *testing.T) {
	var attempts int32
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoRetryableError(t *testing.T) {
	var attempts int32
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return temporaryError{"temporary failure", true}
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success after retries, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoStopsOnAuthError(t *testing.T) {
	var attempts int32
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return shared.ErrAccessTokenExpired
	})
	if !errors.Is(err, shared.ErrAccessTokenExpired) {
		t.Errorf("expected access token error, got %v", err)
	}
	var exceeded *RetriesExceededError
	if errors.As(err, &exceeded) {
		t.Error("auth errors must be returned unchanged")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoNonRetryableError(t *testing.T) {
	var attempts int32
	expected := errors.New("permanent error")

	err := DoWithRetryable(context.Background(), fastConfig(3), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return expected
	}, func(error) bool { return false })

	if err != expected {
		t.Errorf("expected permanent error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoMaxAttemptsReached(t *testing.T) {
	var attempts int32
	failure := temporaryError{"always fails", true}

	err := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return failure
	})

	var exceeded *RetriesExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected RetriesExceededError, got %T: %v", err, err)
	}
	if exceeded.Attempts != 2 {
		t.Errorf("expected 2 attempts recorded, got %d", exceeded.Attempts)
	}
	if exceeded.Reason != "max attempts exceeded" {
		t.Errorf("unexpected reason %q", exceeded.Reason)
	}
	if !errors.Is(err, failure) {
		t.Error("expected RetriesExceededError to unwrap to the last error")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(5)
	cfg.After = func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}

	var attempts int32
	err := Do(ctx, cfg, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return temporaryError{"temp", true}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Do(ctx, fastConfig(3), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn must not run on a cancelled context")
	}
}

func TestDoInvalidConfig(t *testing.T) {
	err := Do(context.Background(), Config{MaxAttempts: 0, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		t.Error("fn must not run with an invalid config")
		return nil
	})
	if err == nil {
		t.Error("expected config error")
	}
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, false},
		{"zero attempts", Config{MaxAttempts: 0, InitialDelay: time.Millisecond}, true},
		{"zero delay", Config{MaxAttempts: 1}, true},
		{"initial above max", Config{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Millisecond}, true},
		{"shrinking multiplier", Config{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 0.5}, true},
		{"negative budget", Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxElapsedTime: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			err := cfg.Normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if cfg.Multiplier != 2.0 || cfg.MaxDelay != 30*time.Second {
					t.Errorf("defaults not applied: %+v", cfg)
				}
				if cfg.Rand == nil || cfg.Now == nil || cfg.After == nil {
					t.Error("optional hooks not initialized")
				}
			}
		})
	}
}

func TestMaxElapsedTime(t *testing.T) {
	now := time.Unix(0, 0)
	cfg := fastConfig(10)
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Minute
	cfg.MaxElapsedTime = 3 * time.Second
	cfg.Now = func() time.Time { return now }
	cfg.After = func(d time.Duration) <-chan time.Time {
		now = now.Add(d)
		ch := make(chan time.Time, 1)
		ch <- now
		return ch
	}

	var attempts int32
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return temporaryError{"temp", true}
	})

	var exceeded *RetriesExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected RetriesExceededError, got %v", err)
	}
	if exceeded.Reason != "max elapsed time exceeded" {
		t.Errorf("unexpected reason %q", exceeded.Reason)
	}
	// 1s + 2s fit in the budget, the next 4s wait does not.
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestOnRetryCallback(t *testing.T) {
	cfg := fastConfig(3)
	var delays []time.Duration
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		if attempt != len(delays)+1 {
			t.Errorf("unexpected attempt %d", attempt)
		}
		delays = append(delays, delay)
	}

	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		return temporaryError{"temp", true}
	})

	want := []time.Duration{time.Millisecond, 2 * time.Millisecond}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", delays, want)
	}
}

func TestRetriesExceededError(t *testing.T) {
	err := &RetriesExceededError{
		LastError:     errors.New("boom"),
		Attempts:      3,
		TotalDuration: 2 * time.Second,
		Reason:        "max attempts exceeded",
	}
	want := "retry: max attempts exceeded after 2s (3 attempts): boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

type hintedError struct{ after time.Duration }

func (e hintedError) Error() string             { return "slow down" }
func (e hintedError) Temporary() bool           { return true }
func (e hintedError) RetryAfter() time.Duration { return e.after }

func TestRetryAfterHint(t *testing.T) {
	cfg := fastConfig(3)
	var delays []time.Duration
	cfg.OnRetry = func(_ int, _ error, delay time.Duration) {
		delays = append(delays, delay)
	}

	hints := []time.Duration{5 * time.Millisecond, time.Hour}
	var calls int
	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		h := hints[min(calls, len(hints)-1)]
		calls++
		return hintedError{h}
	})

	want := []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v (second hint capped at MaxDelay)", delays, want)
	}
}
