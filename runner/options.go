package runner

import (
	"context"
	"time"

	doorstep "github.com/goliatone/go-doorstep"
)

type Option func(*Handler)

// WithTimeout bounds every Run, retries and backoff included.
func WithTimeout(t time.Duration) Option {
	return func(r *Handler) {
		if t > 0 {
			r.timeout = t
		}
	}
}

func WithDeadline(d time.Time) Option {
	return func(r *Handler) {
		r.deadline = d
	}
}

// WithRunOnce refuses any Run after the first successful one.
func WithRunOnce(once bool) Option {
	return func(r *Handler) {
		r.runOnce = once
	}
}

// WithMaxRetries sets how many times a failed attempt is repeated. Negative
// values mean no retries.
func WithMaxRetries(max int) Option {
	return func(r *Handler) {
		if max < 0 {
			max = 0
		}
		r.maxRetries = max
	}
}

func WithMaxRuns(max int) Option {
	return func(r *Handler) {
		r.maxRuns = max
	}
}

// WithErrorHandler receives every failed attempt and the final failure.
func WithErrorHandler(h func(error)) Option {
	return func(r *Handler) {
		if h == nil {
			h = func(error) {}
		}
		r.errorHandler = h
	}
}

func WithLogger(l doorstep.Logger) Option {
	return func(r *Handler) {
		r.logger = l
	}
}

// WithRetryStrategy decides whether and when a failed attempt is retried.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(r *Handler) {
		if s != nil {
			r.retryStrategy = s
		}
	}
}

// WithSleep replaces the backoff wait, mostly for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Handler) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}
