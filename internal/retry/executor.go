package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrTimeout marks an attempt that exceeded its per-attempt timeout.
// It is classified as retryable.
var ErrTimeout = errors.New("operation timed out")

// Policy is an immutable retry policy, constructed once per call site.
type Policy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
}

// DefaultPolicy matches the standard CRM call profile: 3 attempts,
// 10s per attempt, 2s initial backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		AttemptTimeout: 10 * time.Second,
		InitialBackoff: 2 * time.Second,
	}
}

// Backoff returns the delay to wait after the given 1-based attempt fails.
// Pure exponential, no jitter: initial * 2^(attempt-1).
func (p Policy) Backoff(attempt int) time.Duration {
	delay := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// statusCoder is implemented by errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// retryableStatuses are the HTTP statuses worth another attempt.
var retryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryable classifies an error as transient (another attempt may succeed)
// or permanent (propagate immediately). Connection refused, DNS failures,
// network timeouts, the executor's own timeout, and HTTP 429/5xx are
// retryable; everything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return retryableStatuses[sc.HTTPStatus()]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "no such host", "timeout", "timed out", "connection reset"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

// Executor runs operations under a retry policy. It holds no state beyond
// its logger; it never mutates anything the caller shares.
type Executor struct {
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSleep replaces the backoff sleeper, used by tests to avoid real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// NewExecutor creates an executor logging attempts through the given logger.
func NewExecutor(logger zerolog.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger: logger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes op up to policy.MaxAttempts times. Each attempt races against
// policy.AttemptTimeout; the timeout is per attempt, not cumulative. Success
// on any attempt short-circuits the rest. Non-retryable errors propagate
// immediately; retryable errors propagate only once attempts are exhausted,
// and the returned error is the last attempt's error.
func (e *Executor) Do(ctx context.Context, name string, policy Policy, op func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := e.runAttempt(ctx, policy.AttemptTimeout, op)
		if err == nil {
			if attempt > 1 {
				e.logger.Info().
					Str("operation", name).
					Int("attempt", attempt).
					Int("max_attempts", policy.MaxAttempts).
					Msg("operation recovered after retry")
			}
			return nil
		}

		retryable := IsRetryable(err)
		e.logger.Warn().
			Str("operation", name).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Bool("retryable", retryable).
			Err(err).
			Msg("operation attempt failed")

		if !retryable {
			return err
		}

		lastErr = err
		if attempt < policy.MaxAttempts {
			if sleepErr := e.sleep(ctx, policy.Backoff(attempt)); sleepErr != nil {
				return fmt.Errorf("retry aborted: %w", sleepErr)
			}
		}
	}

	return lastErr
}

// runAttempt races op against the per-attempt timeout. The operation receives
// a context that expires with the timeout so well-behaved callees stop early,
// but the race does not wait for them: once the timer fires the attempt is
// counted as failed with ErrTimeout.
func (e *Executor) runAttempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(attemptCtx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return err
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return attemptCtx.Err()
	}
}
