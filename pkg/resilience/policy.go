// Package resilience provides the one retry policy used for every external
// lookup: bounded attempts, exponential backoff with jitter, a per-attempt
// timeout and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds policy settings.
type Config struct {
	Name            string
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerOpen     time.Duration
	RetryIf         func(error) bool
}

// Option configures Policy.
type Option func(*Config)

// WithAttempts sets the attempt budget (first try included).
func WithAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithBackoff sets base and max delay between attempts.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Config) {
		c.BaseDelay = base
		c.MaxDelay = max
	}
}

// WithTimeout bounds every single attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithBreaker trips after failures consecutive failures and stays open for openFor.
// Zero failures disables the breaker.
func WithBreaker(failures uint32, openFor time.Duration) Option {
	return func(c *Config) {
		c.BreakerFailures = failures
		c.BreakerOpen = openFor
	}
}

// WithRetryIf restricts retries to errors accepted by fn.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) {
		c.RetryIf = fn
	}
}

// Policy executes calls under the configured budget.
type Policy struct {
	cfg Config
	cb  *gobreaker.CircuitBreaker
}

// New creates a policy. name labels the breaker and errors.
func New(name string, opts ...Option) *Policy {
	cfg := Config{
		Name:        name,
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Timeout:     3 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Policy{cfg: cfg}
	if cfg.BreakerFailures > 0 {
		p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.BreakerOpen,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled) || IsPermanent(err)
			},
		})
	}
	return p
}

// Name returns the policy label.
func (p *Policy) Name() string { return p.cfg.Name }

// Do runs fn until it succeeds, the budget is spent, the error is permanent,
// the breaker is open, or ctx ends.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	attempts := 0
	for attempts < p.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			break
		}
		attempts++
		err := p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		last = err
		if !p.retryable(err) || attempts == p.cfg.MaxAttempts {
			break
		}
		if werr := sleep(ctx, backoffWithJitter(p.cfg.BaseDelay, p.cfg.MaxDelay, attempts)); werr != nil {
			break
		}
	}
	return fmt.Errorf("%s: gave up after %d attempt(s): %w", p.cfg.Name, attempts, last)
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p *Policy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	actx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	if p.cb == nil {
		return fn(actx)
	}
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, fn(actx)
	})
	return err
}

func (p *Policy) retryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if p.cfg.RetryIf != nil {
		return p.cfg.RetryIf(err)
	}
	return true
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		return 0
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}
