package trip

import (
	"context"
	"time"

	doorstep "github.com/goliatone/go-doorstep"
)

// Fetcher returns the next delivery of the driver's trip.
type Fetcher interface {
	Fetch(ctx context.Context) (doorstep.TripData, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (doorstep.TripData, error)

func (f FetcherFunc) Fetch(ctx context.Context) (doorstep.TripData, error) {
	return f(ctx)
}

// Finalizer reports a closed-out delivery upstream. Calls happen after the
// local outcome ledger is updated and are never awaited by the caller.
type Finalizer interface {
	MarkDelivered(ctx context.Context, deliveryID string) error
	MarkReturned(ctx context.Context, deliveryID, reason string) error
}

// Alert is raised when finalization gave up and an operator must step in.
type Alert struct {
	ID         string
	DeliveryID string
	Outcome    doorstep.OutcomeKind
	Message    string
	Err        error
	At         time.Time
}

// AlertSink receives operator alerts.
type AlertSink interface {
	Alert(ctx context.Context, alert Alert)
}

// AlertFunc adapts a function to AlertSink.
type AlertFunc func(ctx context.Context, alert Alert)

func (f AlertFunc) Alert(ctx context.Context, alert Alert) {
	f(ctx, alert)
}

// LogFinalizer only logs; used when no upstream is configured.
type LogFinalizer struct {
	Logger doorstep.Logger
}

func (f LogFinalizer) MarkDelivered(_ context.Context, deliveryID string) error {
	doorstep.WithLoggerFields(doorstep.NormalizeLogger(f.Logger), map[string]any{
		"delivery_id": deliveryID,
	}).Info("order marked delivered")
	return nil
}

func (f LogFinalizer) MarkReturned(_ context.Context, deliveryID, reason string) error {
	doorstep.WithLoggerFields(doorstep.NormalizeLogger(f.Logger), map[string]any{
		"delivery_id": deliveryID,
		"reason":      reason,
	}).Info("order marked returned")
	return nil
}

// LogAlertSink writes alerts at error level.
type LogAlertSink struct {
	Logger doorstep.Logger
}

func (s LogAlertSink) Alert(_ context.Context, alert Alert) {
	doorstep.WithLoggerFields(doorstep.NormalizeLogger(s.Logger), map[string]any{
		"alert_id":    alert.ID,
		"delivery_id": alert.DeliveryID,
		"outcome":     string(alert.Outcome),
	}).Error("operator alert: %s: %v", alert.Message, alert.Err)
}
