package trip

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/runner"
)

// finalize reports the outcome upstream on a goroutine, retrying transient
// failures. When retries run out an operator alert is raised.
func (o *Orchestrator) finalize(kind doorstep.OutcomeKind, id, reason string) {
	logger := doorstep.WithLoggerFields(o.logger, map[string]any{
		"delivery_id": id,
		"outcome":     string(kind),
	})
	handler := runner.NewHandler(
		runner.WithMaxRetries(o.finalizeRetries),
		runner.WithLogger(logger),
		runner.WithRetryStrategy(runner.RetryIf{
			Strategy: runner.ExponentialBackoffStrategy{
				Base:   o.retryBase,
				Factor: 2,
				Max:    o.retryMax,
			},
			Retryable: doorstep.IsTransient,
		}),
		runner.WithErrorHandler(func(err error) {
			logger.Warn("finalization attempt failed: %v", err)
		}),
	)

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()

		err := handler.Run(o.background, func(ctx context.Context) error {
			return o.callFinalizer(ctx, kind, id, reason)
		})
		if err == nil {
			logger.Debug("finalization reported upstream")
			return
		}

		o.metrics.FinalizeFailed(string(kind))
		o.alerts.Alert(o.background, Alert{
			ID:         uuid.NewString(),
			DeliveryID: id,
			Outcome:    kind,
			Message:    fmt.Sprintf("could not report delivery %s as %s", id, kind),
			Err:        err,
			At:         o.now(),
		})
	}()
}

func (o *Orchestrator) callFinalizer(ctx context.Context, kind doorstep.OutcomeKind, id, reason string) error {
	var err error
	switch kind {
	case doorstep.OutcomeDelivered:
		err = o.finalizer.MarkDelivered(ctx, id)
	case doorstep.OutcomeReturned:
		err = o.finalizer.MarkReturned(ctx, id, reason)
	default:
		return doorstep.NewError(doorstep.ErrInvalidAction, fmt.Sprintf("unknown outcome %s", kind), nil, nil)
	}
	if err == nil || doorstep.ErrorCode(err) != "" {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	return doorstep.NewError(doorstep.ErrFinalizeFailed, "", err, map[string]any{
		"delivery_id": id,
		"outcome":     string(kind),
	})
}
