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
	"syscall"
	"time"
)

// JitterStrategy selects how a computed backoff delay is randomized.
type JitterStrategy int

const (
	// JitterNone uses the exponential delay as is.
	JitterNone JitterStrategy = iota
	// JitterFull picks a delay uniformly in [0, delay].
	JitterFull
	// JitterDecorrelated picks a delay in [delay, 1.5*delay).
	JitterDecorrelated
)

// Config controls Do.
type Config struct {
	// MaxAttempts counts the first call.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxElapsedTime bounds the whole retry loop; zero means no limit.
	MaxElapsedTime time.Duration
	Multiplier     float64
	JitterStrategy JitterStrategy
	Rand           *rand.Rand

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, nextDelay time.Duration)

	// Now and After replace the clock in tests.
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig returns three attempts with decorrelated jitter starting
// at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterStrategy: JitterDecorrelated,
	}
}

// Normalize fills defaults and rejects inconsistent settings.
func (c *Config) Normalize() error {
	if c.MaxAttempts <= 0 {
		return errors.New("retry: MaxAttempts must be positive")
	}
	if c.InitialDelay <= 0 {
		return errors.New("retry: InitialDelay must be positive")
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.InitialDelay > c.MaxDelay {
		return errors.New("retry: InitialDelay cannot be greater than MaxDelay")
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	if c.MaxElapsedTime < 0 {
		return errors.New("retry: MaxElapsedTime cannot be negative")
	}

	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.After == nil {
		c.After = time.After
	}
	return nil
}

// RetryableFunc is the operation being retried.
type RetryableFunc func(ctx context.Context) error

// IsRetryableFunc decides whether an error is worth another attempt.
type IsRetryableFunc func(err error) bool

// RetriesExceededError is returned when the attempt or time budget runs out.
// It unwraps to the last error.
type RetriesExceededError struct {
	LastError     error
	Attempts      int
	TotalDuration time.Duration
	Reason        string
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("retry: %s after %s (%d attempts): %v",
		e.Reason, e.TotalDuration, e.Attempts, e.LastError)
}

func (e *RetriesExceededError) Unwrap() error {
	return e.LastError
}

// retryable is implemented by errors that classify themselves, such as
// the application errors returned by server functions.
type retryable interface {
	IsRetryable() bool
}

// delayHinter is implemented by errors that know when the next attempt
// may start, such as an HTTP response carrying Retry-After.
type delayHinter interface {
	RetryAfter() time.Duration
}

// hintedDelay returns the delay requested by err, capped at MaxDelay.
func (c Config) hintedDelay(err error) (time.Duration, bool) {
	var h delayHinter
	if !errors.As(err, &h) {
		return 0, false
	}
	d := h.RetryAfter()
	if d <= 0 {
		return 0, false
	}
	return min(d, c.MaxDelay), true
}

// DefaultRetryable reports whether err looks transient. Errors that carry
// their own IsRetryable method decide for themselves; otherwise timeouts,
// dropped connections and temporary network failures are retried and
// cancellation is not.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var self retryable
	if errors.As(err, &self) {
		return self.IsRetryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	type timeout interface {
		Timeout() bool
	}
	var te timeout
	if errors.As(err, &te) && te.Timeout() {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var dnsErr *net.DNSError
		if errors.As(urlErr.Err, &dnsErr) && dnsErr.IsTemporary {
			return true
		}
		var syscallErr *os.SyscallError
		if errors.As(urlErr.Err, &syscallErr) {
			switch syscallErr.Err {
			case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
				syscall.ENETDOWN, syscall.ENETUNREACH, syscall.EPIPE,
				syscall.EHOSTUNREACH, syscall.ETIMEDOUT:
				return true
			}
		}
	}

	type temporary interface {
		Temporary() bool
	}
	var tmp temporary
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	return false
}

// Do calls fn until it succeeds, returns an error DefaultRetryable rejects,
// or the budget in config runs out.
func Do(ctx context.Context, config Config, fn RetryableFunc) error {
	return DoWithRetryable(ctx, config, fn, DefaultRetryable)
}

// DoWithRetryable is Do with a custom retry predicate. A non-retryable
// error is returned unchanged; an exhausted budget returns
// *RetriesExceededError wrapping the last error.
func DoWithRetryable(ctx context.Context, config Config, fn RetryableFunc, isRetryable IsRetryableFunc) error {
	cfg := config
	if err := cfg.Normalize(); err != nil {
		return err
	}

	var lastErr error
	start := cfg.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if !isRetryable(lastErr) {
			return lastErr
		}

		delay, hinted := cfg.hintedDelay(lastErr)
		if !hinted {
			delay = cfg.applyJitter(cfg.calculateDelay(attempt))
		}

		if cfg.MaxElapsedTime > 0 {
			elapsed := cfg.Now().Sub(start)
			if elapsed+delay > cfg.MaxElapsedTime {
				return &RetriesExceededError{
					LastError:     lastErr,
					Attempts:      attempt,
					TotalDuration: elapsed,
					Reason:        "max elapsed time exceeded",
				}
			}
		}

		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); delay > remaining {
				delay = remaining
			}
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cfg.After(delay):
		}
	}

	return &RetriesExceededError{
		LastError:     lastErr,
		Attempts:      cfg.MaxAttempts,
		TotalDuration: cfg.Now().Sub(start),
		Reason:        "max attempts exceeded",
	}
}

// calculateDelay returns InitialDelay * Multiplier^(attempt-1), capped at
// MaxDelay.
func (c Config) calculateDelay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		if float64(delay)*c.Multiplier >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
		delay = time.Duration(float64(delay) * c.Multiplier)
	}
	return min(delay, c.MaxDelay)
}

func (c Config) applyJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}
	switch c.JitterStrategy {
	case JitterFull:
		return time.Duration(c.Rand.Int63n(int64(delay) + 1))
	case JitterDecorrelated:
		spread := int64(delay / 2)
		if spread == 0 {
			return delay
		}
		return min(delay+time.Duration(c.Rand.Int63n(spread)), c.MaxDelay)
	default:
		return delay
	}
}

// Retry runs fn with DefaultConfig.
func Retry(ctx context.Context, fn RetryableFunc) error {
	return Do(ctx, DefaultConfig(), fn)
}
