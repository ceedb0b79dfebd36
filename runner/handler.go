// Package runner executes a function with retries, backoff and run limits.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/goliatone/go-errors"

	doorstep "github.com/goliatone/go-doorstep"
)

const (
	ErrCodeRunFailed  = "RUNNER_RUN_FAILED"
	ErrCodeRunSkipped = "RUNNER_RUN_SKIPPED"
)

type Handler struct {
	mu sync.Mutex

	logger        doorstep.Logger
	errorHandler  func(error)
	retryStrategy RetryStrategy
	sleep         func(context.Context, time.Duration) error

	runs           int
	successfulRuns int

	maxRuns    int
	maxRetries int
	timeout    time.Duration
	deadline   time.Time
	runOnce    bool
}

// NewHandler constructs a Handler from options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		retryStrategy: NoDelayStrategy{},
		sleep:         sleepContext,
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	h.logger = doorstep.NormalizeLogger(h.logger)
	if h.errorHandler == nil {
		h.errorHandler = func(err error) {
			h.logger.Warn("runner error: %v", err)
		}
	}
	return h
}

// Run calls fn until it succeeds or retries are exhausted and returns the
// last error. Intermediate failures go to the error handler.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()
	if (h.runOnce && h.successfulRuns >= 1) || (h.maxRuns > 0 && h.successfulRuns >= h.maxRuns) {
		h.mu.Unlock()
		return apperrors.New("run limit reached", apperrors.CategoryConflict).
			WithTextCode(ErrCodeRunSkipped)
	}
	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	h.mu.Unlock()

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts++
		err = fn(ctx)
		if err == nil || attempt == maxRetries {
			break
		}

		decision := DecideRetry(strategy, attempt, err)
		h.errorHandler(wrapRunError(err, fmt.Sprintf("attempt %d of %d failed", attempt+1, maxRetries+1), attempt+1))
		if !decision.ShouldRetry {
			break
		}
		if decision.Delay > 0 {
			if sleepErr := h.sleep(ctx, decision.Delay); sleepErr != nil {
				err = sleepErr
				break
			}
		}
	}

	h.mu.Lock()
	h.runs++
	if err != nil {
		h.mu.Unlock()
		wrapped := wrapRunError(err, fmt.Sprintf("failed after %d attempts", attempts), attempts)
		h.errorHandler(wrapped)
		return wrapped
	}
	h.successfulRuns++
	if h.maxRuns > 0 && h.successfulRuns >= h.maxRuns {
		h.logger.Debug("run limit of %d reached", h.maxRuns)
	}
	h.mu.Unlock()
	return nil
}

// Stats returns total and successful run counts.
func (h *Handler) Stats() (runs, successful int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs, h.successfulRuns
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout != 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout != 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}

func wrapRunError(err error, message string, attempts int) error {
	return apperrors.Wrap(err, apperrors.CategoryHandler, message).
		WithTextCode(ErrCodeRunFailed).
		WithMetadata(map[string]any{"attempts": attempts})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
