// Package resilience wraps calls to external services in a retry policy
// with exponential backoff behind a per-dependency circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/logger"
)

const (
	defaultTripAfter   = 5
	defaultOpenTimeout = 30 * time.Second
)

// Policy executes operations with retries and a circuit breaker.
// A Policy is safe for concurrent use; share one per dependency.
type Policy struct {
	name        string
	maxAttempts uint
	initial     time.Duration
	maxInterval time.Duration
	tripAfter   uint32
	openTimeout time.Duration
	breaker     *gobreaker.CircuitBreaker
}

// Option configures a Policy.
type Option func(*Policy)

// WithTripAfter opens the breaker after n consecutive transient failures.
func WithTripAfter(n uint32) Option {
	return func(p *Policy) {
		if n > 0 {
			p.tripAfter = n
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.openTimeout = d
		}
	}
}

// New creates a policy for the named dependency.
func New(name string, s domain.ResilienceSettings, opts ...Option) *Policy {
	p := &Policy{
		name:        name,
		maxAttempts: uint(max(s.MaxAttempts, 1)),
		initial:     s.InitialBackoff,
		maxInterval: s.MaxBackoff,
		tripAfter:   defaultTripAfter,
		openTimeout: defaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     p.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.tripAfter
		},
		// Only service failures count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return p
}

// Name returns the dependency name.
func (p *Policy) Name() string {
	return p.name
}

// Do runs op until it succeeds, fails permanently or attempts run out.
// Non-transient errors are returned unchanged after the first attempt.
// Exhausted retries return an error wrapping domain.ErrUnrecoverable
// joined with the last cause.
func Do[T any](ctx context.Context, p *Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if p == nil {
		return op(ctx)
	}

	attempts := 0
	operation := func() (T, error) {
		attempts++
		out, err := p.breaker.Execute(func() (interface{}, error) {
			return op(ctx)
		})
		if err == nil {
			v, _ := out.(T)
			return v, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, backoff.Permanent(fmt.Errorf("%w: %s circuit open", domain.ErrUnrecoverable, p.name))
		}
		if ctx.Err() != nil || !isTransient(err) {
			return zero, backoff.Permanent(err)
		}
		logger.Debug("%s attempt %d failed: %v", p.name, attempts, err)
		return zero, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(p.maxAttempts),
	)
	if err == nil {
		return result, nil
	}
	if isTransient(err) && ctx.Err() == nil {
		return zero, fmt.Errorf("%s: %d attempts: %w", p.name, attempts, errors.Join(domain.ErrUnrecoverable, err))
	}
	return zero, err
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p *Policy, op func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func (p *Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.initial > 0 {
		b.InitialInterval = p.initial
	}
	if p.maxInterval > 0 {
		b.MaxInterval = p.maxInterval
	}
	b.Multiplier = 2
	return b
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrTransient) || errors.Is(err, domain.ErrRateLimited)
}
