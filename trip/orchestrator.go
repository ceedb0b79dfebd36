// Package trip drives the delivery lifecycle: fetching the next delivery,
// resuming a persisted one and closing deliveries out into the outcome
// ledgers.
package trip

import (
	"context"
	"fmt"
	"sync"
	"time"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/metrics"
	"github.com/goliatone/go-doorstep/store"
)

// Store is the part of the delivery store the orchestrator drives.
type Store interface {
	Open(ctx context.Context) error
	Dispatch(ctx context.Context, action doorstep.Action) (doorstep.Transition, error)
	Instance() doorstep.Instance
	Reconcile(ctx context.Context) (store.Decision, error)
}

// Outcome reports what a close-out request did.
type Outcome struct {
	DeliveryID string
	Kind       doorstep.OutcomeKind
	// Duplicate is set when the delivery had already been closed out.
	Duplicate bool
}

// Orchestrator owns the trip lifecycle around a Store.
type Orchestrator struct {
	store     Store
	fetcher   Fetcher
	finalizer Finalizer
	alerts    AlertSink
	logger    doorstep.Logger
	metrics   metrics.Recorder
	now       func() time.Time

	finalizeRetries int
	retryBase       time.Duration
	retryMax        time.Duration

	// mu serializes lifecycle transitions; store mutations are already serialized.
	mu sync.Mutex

	inflight   sync.WaitGroup
	background context.Context
	cancel     context.CancelFunc
}

// New builds an orchestrator over store and fetcher.
func New(s Store, fetcher Fetcher, opts ...Option) (*Orchestrator, error) {
	if s == nil {
		return nil, fmt.Errorf("trip orchestrator requires a store")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("trip orchestrator requires a fetcher")
	}
	o := &Orchestrator{
		store:           s,
		fetcher:         fetcher,
		now:             func() time.Time { return time.Now().UTC() },
		finalizeRetries: 3,
		retryBase:       500 * time.Millisecond,
		retryMax:        30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.logger = doorstep.WithLoggerFields(doorstep.NormalizeLogger(o.logger), map[string]any{"component": "trip"})
	o.metrics = metrics.Normalize(o.metrics)
	if o.finalizer == nil {
		o.finalizer = LogFinalizer{Logger: o.logger}
	}
	if o.alerts == nil {
		o.alerts = LogAlertSink{Logger: o.logger}
	}
	o.background, o.cancel = context.WithCancel(context.Background())
	return o, nil
}

// Phase derives the current phase from the store.
func (o *Orchestrator) Phase() Phase {
	return PhaseOf(o.store.Instance())
}

// Start rehydrates the store and makes sure a delivery is in progress. A
// persisted delivery that is already archived is treated as absent.
func (o *Orchestrator) Start(ctx context.Context) (Phase, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.store.Open(ctx); err != nil {
		return PhaseNoActive, err
	}

	inst := o.store.Instance()
	phase := PhaseOf(inst)
	logger := doorstep.WithLoggerFields(o.logger, map[string]any{
		"delivery_id": inst.DeliveryID(),
		"phase":       string(phase),
		"generation":  inst.Generation,
	})

	switch phase {
	case PhaseInProgress:
		logger.Info("resuming persisted delivery")
		return o.reseed(ctx, inst)
	case PhaseClosedOut:
		logger.Warn("persisted delivery already closed out, fetching the next one")
	default:
		logger.Info("no persisted delivery, fetching")
	}
	return o.fetch(ctx)
}

// Tick advances the lifecycle by one step: a closed-out delivery moves on
// to the next fetch, no delivery triggers a fetch and a delivery in progress
// is left alone.
func (o *Orchestrator) Tick(ctx context.Context) (Phase, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// pick up mutations written by other processes sharing the storage key
	decision, err := o.store.Reconcile(ctx)
	if err != nil {
		return o.Phase(), err
	}
	if decision != store.DecisionUnchanged {
		o.logger.Debug("tick reconciled store: %s", decision)
	}

	inst := o.store.Instance()
	switch PhaseOf(inst) {
	case PhaseInProgress:
		return o.reseed(ctx, inst)
	case PhaseClosedOut:
		if inst.SuccessFlash {
			if _, err := o.store.Dispatch(ctx, doorstep.ClearFlash{}); err != nil {
				return PhaseClosedOut, err
			}
		}
		doorstep.WithLoggerFields(o.logger, map[string]any{
			"delivery_id": inst.DeliveryID(),
		}).Debug("closed-out delivery released")
	}
	return o.fetch(ctx)
}

// HandleOrderComplete closes the active delivery out as delivered. It is
// allowed for scenarios that need no signature or once a signature step is
// done. Finalization upstream runs in the background.
func (o *Orchestrator) HandleOrderComplete(ctx context.Context) (Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	inst := o.store.Instance()
	id := inst.DeliveryID()
	if id == "" {
		return Outcome{}, doorstep.NewError(doorstep.ErrNoActiveDelivery, "", nil, nil)
	}
	if kind, ok := inst.Outcomes.Lookup(id); ok {
		return Outcome{DeliveryID: id, Kind: kind, Duplicate: true}, nil
	}
	if !doorstep.CanComplete(inst) {
		return Outcome{DeliveryID: id}, doorstep.NewError(doorstep.ErrCompletionNotAllowed,
			fmt.Sprintf("delivery %s needs a signature before it can be completed", id), nil,
			map[string]any{"delivery_id": id, "scenario": inst.Scenario.String()})
	}
	return o.closeOut(ctx, doorstep.OutcomeDelivered, id, "")
}

// HandleOrderReturn closes the active delivery out as returned to the
// warehouse. It has no precondition beyond an active delivery.
func (o *Orchestrator) HandleOrderReturn(ctx context.Context, reason string) (Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	inst := o.store.Instance()
	id := inst.DeliveryID()
	if id == "" {
		return Outcome{}, doorstep.NewError(doorstep.ErrNoActiveDelivery, "", nil, nil)
	}
	if kind, ok := inst.Outcomes.Lookup(id); ok {
		return Outcome{DeliveryID: id, Kind: kind, Duplicate: true}, nil
	}
	if reason == "" {
		reason = inst.State.DeliveryReturnReason
	}
	return o.closeOut(ctx, doorstep.OutcomeReturned, id, reason)
}

// Close waits for in-flight finalization. When ctx ends first the pending
// calls are cancelled and ctx's error is returned.
func (o *Orchestrator) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}

func (o *Orchestrator) closeOut(ctx context.Context, kind doorstep.OutcomeKind, id, reason string) (Outcome, error) {
	tr, err := o.store.Dispatch(ctx, doorstep.RecordOutcome{Kind: kind, DeliveryID: id, Reason: reason})
	if err != nil {
		return Outcome{DeliveryID: id, Kind: kind}, err
	}
	if tr.Duplicate {
		return Outcome{DeliveryID: id, Kind: kind, Duplicate: true}, nil
	}

	o.metrics.DeliveryFinalized(string(kind))
	doorstep.WithLoggerFields(o.logger, map[string]any{
		"delivery_id": id,
		"outcome":     string(kind),
		"reason":      reason,
	}).Info("delivery closed out")

	o.finalize(kind, id, reason)
	return Outcome{DeliveryID: id, Kind: kind}, nil
}

func (o *Orchestrator) fetch(ctx context.Context) (Phase, error) {
	start := time.Now()
	trip, err := o.fetcher.Fetch(ctx)
	o.metrics.RecordDuration("trip_fetch", time.Since(start))
	if err != nil {
		o.metrics.FetchFailed()
		if doorstep.ErrorCode(err) == "" {
			err = doorstep.NewError(doorstep.ErrFetchFailed, "", err, nil)
		}
		o.logger.Warn("trip fetch failed, retry on next tick: %v", err)
		return o.Phase(), err
	}

	tr, err := o.store.Dispatch(ctx, doorstep.StartDelivery{Trip: trip})
	if err != nil {
		return o.Phase(), err
	}
	doorstep.WithLoggerFields(o.logger, map[string]any{
		"delivery_id": tr.Instance.DeliveryID(),
		"scenario":    tr.Instance.Scenario.String(),
		"generation":  tr.Instance.Generation,
	}).Info("delivery started")
	return PhaseOf(tr.Instance), nil
}

// reseed assigns the initial scenario again when a delivery in progress has
// none, e.g. after a reset.
func (o *Orchestrator) reseed(ctx context.Context, inst doorstep.Instance) (Phase, error) {
	if inst.Scenario != doorstep.ScenarioNone || inst.Trip == nil {
		return PhaseInProgress, nil
	}
	scenario := doorstep.ScenarioFor(*inst.Trip)
	if _, err := o.store.Dispatch(ctx, doorstep.SetScenario{DeliveryID: inst.DeliveryID(), Scenario: scenario}); err != nil {
		return PhaseInProgress, err
	}
	doorstep.WithLoggerFields(o.logger, map[string]any{
		"delivery_id": inst.DeliveryID(),
		"scenario":    scenario.String(),
	}).Info("scenario reseeded")
	return PhaseInProgress, nil
}
