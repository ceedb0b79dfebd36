// Package store holds the durable delivery store: the single serialized
// writer over the active delivery instance and its storage backends.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/metrics"
)

// DefaultKey is used when no storage key is configured.
const DefaultKey = "default"

// Listener receives the view after every committed mutation.
type Listener func(doorstep.View)

// Store owns the live delivery instance. Every mutation runs through
// Dispatch, which reduces, persists and only then commits in memory.
type Store struct {
	storage Storage
	table   doorstep.Table
	key     string
	logger  doorstep.Logger
	metrics metrics.Recorder
	now     func() time.Time
	nextID  func() string

	mu      sync.Mutex
	inst    doorstep.Instance
	version int
	opened  bool

	subsMu  sync.RWMutex
	subs    map[uint64]Listener
	nextSub uint64
}

// New builds a store over storage. The table is validated up front.
func New(storage Storage, opts ...Option) (*Store, error) {
	s := &Store{
		storage: storage,
		table:   doorstep.DefaultTable(),
		key:     DefaultKey,
		now:     func() time.Time { return time.Now().UTC() },
		nextID:  func() string { return uuid.Must(uuid.NewV7()).String() },
		inst:    doorstep.NewInstance(),
		subs:    make(map[uint64]Listener),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.storage == nil {
		s.storage = NewMemoryStorage()
	}
	s.key = strings.TrimSpace(s.key)
	if s.key == "" {
		s.key = DefaultKey
	}
	s.logger = doorstep.WithLoggerFields(doorstep.NormalizeLogger(s.logger), map[string]any{
		"component":   "store",
		"storage_key": s.key,
	})
	s.metrics = metrics.Normalize(s.metrics)
	if err := s.table.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open rehydrates the instance from storage. It is the only read of
// persisted data at start-up; calling it again reloads.
func (s *Store) Open(ctx context.Context) error {
	snap, err := s.storage.Load(ctx, s.key)
	if err != nil {
		s.logger.Error("rehydration failed: %v", err)
		return err
	}

	s.mu.Lock()
	if snap == nil {
		s.inst = doorstep.NewInstance()
		s.version = 0
	} else {
		s.inst = snap.Instance()
		s.version = snap.Version
	}
	s.opened = true
	inst := s.inst.Clone()
	version := s.version
	s.mu.Unlock()

	doorstep.WithLoggerFields(s.logger, map[string]any{
		"delivery_id": inst.DeliveryID(),
		"version":     version,
		"generation":  inst.Generation,
	}).Info("store rehydrated")

	s.notify(inst)
	return nil
}

// Dispatch applies action. On any failure the in-memory instance keeps its
// last-known-good value.
func (s *Store) Dispatch(ctx context.Context, action doorstep.Action) (doorstep.Transition, error) {
	start := time.Now()
	mutationID := s.nextID()
	actionType := "<nil>"
	if action != nil {
		actionType = action.Type()
	}

	s.mu.Lock()
	current := s.inst
	tr, err := doorstep.Reduce(s.table, current, action)
	if err != nil {
		s.mu.Unlock()
		s.fail(current, actionType, mutationID, err)
		return tr, err
	}
	if !tr.Changed {
		s.mu.Unlock()
		s.metrics.Mutation(actionType, nil)
		s.mutationLogger(current, actionType, mutationID, s.version).Debug("mutation was a no-op")
		return tr, nil
	}

	version := s.version
	if persisted(action) {
		snap := tr.Instance.Snapshot()
		snap.UpdatedAt = s.now()
		version, err = s.storage.Save(ctx, s.key, snap, s.version)
		if err != nil {
			s.mu.Unlock()
			s.fail(current, actionType, mutationID, err)
			if doorstep.HasCode(err, doorstep.ErrCodeVersionConflict) {
				// another writer got there first; adopt its snapshot so the
				// caller can retry against the current state
				if _, rerr := s.Reconcile(ctx); rerr != nil {
					s.logger.Error("reconcile after version conflict failed: %v", rerr)
				}
				return doorstep.Transition{Instance: s.Instance()}, err
			}
			return doorstep.Transition{Instance: current.Clone()}, err
		}
	}
	s.inst = tr.Instance
	s.version = version
	committed := s.inst.Clone()
	s.mu.Unlock()

	s.metrics.Mutation(actionType, nil)
	s.metrics.RecordDuration("store_dispatch", time.Since(start))
	for _, res := range tr.Completions {
		if res.Applied {
			s.metrics.StepCompleted(res.Step.String())
		}
	}
	s.mutationLogger(committed, actionType, mutationID, version).Debug("mutation committed")

	s.notify(committed)
	return tr, nil
}

// StartDelivery replaces the working set with trip.
func (s *Store) StartDelivery(ctx context.Context, trip doorstep.TripData) (doorstep.Transition, error) {
	return s.Dispatch(ctx, doorstep.StartDelivery{Trip: trip})
}

// SetScenario reassigns the scenario of deliveryID, which must be the active delivery.
func (s *Store) SetScenario(ctx context.Context, deliveryID string, scenario doorstep.Scenario) (doorstep.Transition, error) {
	return s.Dispatch(ctx, doorstep.SetScenario{DeliveryID: deliveryID, Scenario: scenario})
}

// UpdateDeliveryState merges patch into the delivery state.
func (s *Store) UpdateDeliveryState(ctx context.Context, patch doorstep.StatePatch) (doorstep.Transition, error) {
	return s.Dispatch(ctx, doorstep.UpdateState{Patch: patch})
}

// CompleteStep signals completion of step.
func (s *Store) CompleteStep(ctx context.Context, step doorstep.Step) (doorstep.Transition, error) {
	return s.Dispatch(ctx, doorstep.CompleteStep{Step: step})
}

// RecordOutcome archives deliveryID into the kind ledger.
func (s *Store) RecordOutcome(ctx context.Context, kind doorstep.OutcomeKind, deliveryID, reason string) (doorstep.Transition, error) {
	return s.Dispatch(ctx, doorstep.RecordOutcome{Kind: kind, DeliveryID: deliveryID, Reason: reason})
}

// ClearFlash drops the success confirmation.
func (s *Store) ClearFlash(ctx context.Context) (doorstep.Transition, error) {
	return s.Dispatch(ctx, doorstep.ClearFlash{})
}

// Reset clears scenario, state and ledger.
func (s *Store) Reset(ctx context.Context) (doorstep.Transition, error) {
	return s.Dispatch(ctx, doorstep.Reset{})
}

// Instance returns a copy of the live instance.
func (s *Store) Instance() doorstep.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst.Clone()
}

// Version returns the storage version of the live instance.
func (s *Store) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Opened reports whether Open has completed at least once.
func (s *Store) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Table returns a copy of the table in use.
func (s *Store) Table() doorstep.Table {
	return s.table.Clone()
}

// View resolves the live instance.
func (s *Store) View() (doorstep.View, error) {
	return doorstep.Resolve(s.table, s.Instance())
}

// Subscribe registers fn for committed mutations and returns its cancel func.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) notify(inst doorstep.Instance) {
	s.subsMu.RLock()
	if len(s.subs) == 0 {
		s.subsMu.RUnlock()
		return
	}
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subsMu.RUnlock()

	view, err := doorstep.Resolve(s.table, inst)
	if err != nil {
		s.logger.Error("resolve for listeners failed: %v", err)
	}
	for _, fn := range listeners {
		fn(view)
	}
}

func (s *Store) fail(inst doorstep.Instance, actionType, mutationID string, err error) {
	s.metrics.Mutation(actionType, err)
	if doorstep.IsConfigurationDefect(err) {
		s.metrics.ConfigurationDefect(doorstep.ErrorCode(err))
	}
	logger := s.mutationLogger(inst, actionType, mutationID, s.Version())
	if doorstep.IsConfigurationDefect(err) || doorstep.IsTransient(err) {
		logger.Error("mutation failed: %v", err)
		return
	}
	logger.Warn("mutation rejected: %v", err)
}

func (s *Store) mutationLogger(inst doorstep.Instance, actionType, mutationID string, version int) doorstep.Logger {
	return doorstep.WithLoggerFields(s.logger, map[string]any{
		"delivery_id": inst.DeliveryID(),
		"action":      actionType,
		"mutation_id": mutationID,
		"version":     version,
	})
}

// ClearFlash only touches the transient flag, so it skips the storage write.
func persisted(action doorstep.Action) bool {
	_, transient := action.(doorstep.ClearFlash)
	return !transient
}
