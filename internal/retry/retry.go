// Package retry runs a single vendor call with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts = 50
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxJitter   = time.Second

	growthFactor = 1.5
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MaxJitter:   DefaultMaxJitter,
	}
}

// Delay returns the wait before the retry that follows failed attempt n
// (zero-based): min(base*1.5^n + jitter, max).
func (p Policy) Delay(n int, jitter time.Duration) time.Duration {
	d := float64(p.BaseDelay)*math.Pow(growthFactor, float64(n)) + float64(jitter)
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Error is returned once an operation has given up.
type Error struct {
	Op       string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type Executor struct {
	policy Policy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

type Option func(*Executor)

// WithSleep replaces the wait between attempts.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = f }
}

func WithJitter(f func(max time.Duration) time.Duration) Option {
	return func(e *Executor) { e.jitter = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

func New(policy Policy, opts ...Option) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	e := &Executor{
		policy: policy,
		logger: slog.Default(),
		sleep:  sleepContext,
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Policy() Policy { return e.policy }

// Do calls fn until it succeeds, returns a permanent error, the context is
// done, or the attempt budget is spent. It never panics on behalf of fn.
func Do[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, *Error) {
	var zero T
	var lastErr error
	attempts := 0

	for attempts < e.policy.MaxAttempts {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return zero, &Error{Op: op, Attempts: attempts, Err: lastErr}
		}

		attempts++
		v, err := call(ctx, fn)
		if err == nil {
			if attempts > 1 {
				e.logger.Info("retry succeeded", "op", op, "attempts", attempts)
			}
			return v, nil
		}
		lastErr = err

		if IsPermanent(err) {
			e.logger.Warn("permanent error, not retrying", "op", op, "attempt", attempts, "error", err)
			return zero, &Error{Op: op, Attempts: attempts, Err: err}
		}
		if attempts >= e.policy.MaxAttempts {
			break
		}

		delay := e.policy.Delay(attempts-1, e.jitter(e.policy.MaxJitter))
		e.logger.Warn("attempt failed, backing off",
			"op", op,
			"attempt", attempts,
			"max_attempts", e.policy.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, &Error{Op: op, Attempts: attempts, Err: lastErr}
		}
	}

	e.logger.Error("retries exhausted", "op", op, "attempts", attempts, "error", lastErr)
	return zero, &Error{Op: op, Attempts: attempts, Err: lastErr}
}

func call[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
