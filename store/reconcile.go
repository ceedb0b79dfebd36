package store

import (
	"context"

	doorstep "github.com/goliatone/go-doorstep"
)

// Decision is what Reconcile did with the persisted snapshot.
type Decision string

const (
	DecisionUnchanged   Decision = "unchanged"
	DecisionResumed     Decision = "resumed"
	DecisionStartFresh  Decision = "start-fresh"
	DecisionIgnoreStale Decision = "ignore-stale"
)

// Reconcile re-reads storage and adopts a snapshot written by another
// writer. A higher generation is a newer delivery and replaces the working
// set; the same generation with a newer version resumes it; a lower
// generation is stale and is ignored.
func (s *Store) Reconcile(ctx context.Context) (Decision, error) {
	snap, err := s.storage.Load(ctx, s.key)
	if err != nil {
		return DecisionUnchanged, err
	}
	if snap == nil {
		return DecisionUnchanged, nil
	}

	s.mu.Lock()
	decision := decide(s.inst.Generation, s.version, snap)
	if decision == DecisionResumed || decision == DecisionStartFresh {
		s.inst = snap.Instance()
		s.version = snap.Version
	}
	inst := s.inst.Clone()
	s.mu.Unlock()

	logger := doorstep.WithLoggerFields(s.logger, map[string]any{
		"delivery_id":         inst.DeliveryID(),
		"decision":            string(decision),
		"snapshot_generation": snap.Generation,
		"snapshot_version":    snap.Version,
	})
	switch decision {
	case DecisionIgnoreStale:
		logger.Warn("ignoring stale snapshot")
	case DecisionUnchanged:
		logger.Debug("store already current")
	default:
		logger.Info("adopted persisted snapshot")
		s.notify(inst)
	}
	return decision, nil
}

func decide(generation, version int, snap *doorstep.Snapshot) Decision {
	switch {
	case snap.Generation > generation:
		return DecisionStartFresh
	case snap.Generation < generation:
		return DecisionIgnoreStale
	case snap.Version > version:
		return DecisionResumed
	default:
		return DecisionUnchanged
	}
}
