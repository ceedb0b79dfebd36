package doorstep

import (
	"fmt"
	"strings"
)

// Transition is the result of applying one action.
type Transition struct {
	Instance    Instance
	Changed     bool
	Completions []CompletionResult
	// Duplicate is set when a RecordOutcome named an id already archived.
	Duplicate bool
}

// Reduce applies action to inst and returns the next instance. It never
// mutates inst; on error the caller keeps inst as is. After every action the
// next instance must still resolve against table, so a configuration defect
// aborts the mutation instead of leaving a half-applied instance behind.
func Reduce(table Table, inst Instance, action Action) (Transition, error) {
	if action == nil {
		return Transition{Instance: inst}, NewError(ErrInvalidAction, "action is nil", nil, nil)
	}
	if err := action.Validate(); err != nil {
		return Transition{Instance: inst}, err
	}

	tr := Transition{Instance: inst.Clone()}
	if err := reduce(table, &tr, action); err != nil {
		return Transition{Instance: inst}, err
	}

	if tr.Instance.Scenario != ScenarioNone && tr.Instance.Active() {
		if _, err := table.Resolve(tr.Instance.Scenario, tr.Instance.State); err != nil {
			return Transition{Instance: inst}, err
		}
	}
	return tr, nil
}

func reduce(table Table, tr *Transition, action Action) error {
	inst := &tr.Instance

	switch a := action.(type) {
	case StartDelivery:
		id := strings.TrimSpace(a.Trip.DeliveryID)
		if kind, ok := inst.Outcomes.Lookup(id); ok {
			return NewError(ErrDeliveryMismatch,
				fmt.Sprintf("delivery %s already archived as %s", id, kind),
				nil, map[string]any{"delivery_id": id, "outcome": string(kind)})
		}
		next := NewInstance()
		next.Outcomes = inst.Outcomes
		next.Generation = inst.Generation + 1
		next.Trip = a.Trip.Clone()
		next.Trip.DeliveryID = id
		next.Scenario = ScenarioFor(*next.Trip)
		*inst = next
		tr.Changed = true

	case SetScenario:
		if err := requireDelivery(*inst, a.DeliveryID); err != nil {
			return err
		}
		if _, err := table.Entries(a.Scenario); err != nil {
			return err
		}
		if inst.Scenario != a.Scenario {
			inst.Scenario = a.Scenario
			tr.Changed = true
		}

	case UpdateState:
		if err := requireActive(*inst); err != nil {
			return err
		}
		next := inst.State.Merge(a.Patch)
		if next != inst.State {
			inst.State = next
			tr.Changed = true
		}

	case CompleteStep:
		if err := requireActive(*inst); err != nil {
			return err
		}
		if inst.Scenario == ScenarioNone {
			return NewError(ErrUnknownScenario, "no scenario assigned", nil,
				map[string]any{"delivery_id": inst.DeliveryID(), "step": a.Step.String()})
		}
		steps, err := table.Resolve(inst.Scenario, inst.State)
		if err != nil {
			return err
		}
		ledger, res, err := NewExecutor(steps, inst.Ledger).Complete(a.Step, inst.Ledger)
		if err != nil {
			return err
		}
		inst.Ledger = ledger
		tr.Completions = append(tr.Completions, res)
		tr.Changed = tr.Changed || res.Applied

	case RecordMessage:
		if err := requireActive(*inst); err != nil {
			return err
		}
		inst.Ledger = inst.Ledger.AddMessages(countOrOne(a.Count))
		tr.Changed = true

	case RecordCall:
		if err := requireActive(*inst); err != nil {
			return err
		}
		inst.Ledger = inst.Ledger.AddCalls(countOrOne(a.Count))
		tr.Changed = true

	case RecordOutcome:
		id := strings.TrimSpace(a.DeliveryID)
		if inst.Outcomes.Contains(id) {
			tr.Duplicate = true
			return nil
		}
		if err := requireDelivery(*inst, id); err != nil {
			return err
		}
		next, ok := inst.Outcomes.Record(a.Kind, id, a.Reason)
		if !ok {
			tr.Duplicate = true
			return nil
		}
		inst.Outcomes = next
		inst.SuccessFlash = a.Kind == OutcomeDelivered
		tr.Changed = true

	case ClearFlash:
		if inst.SuccessFlash {
			inst.SuccessFlash = false
			tr.Changed = true
		}

	case Reset:
		inst.Scenario = ScenarioNone
		inst.State = DeliveryState{}
		inst.Ledger = NewLedger()
		inst.SuccessFlash = false
		tr.Changed = true

	case Batch:
		before, changed := tr.Instance, tr.Changed
		for _, child := range a.Actions {
			if err := reduce(table, tr, child); err != nil {
				return err
			}
			// facts reported with a completion only apply with that completion
			if _, ok := child.(CompleteStep); ok && !lastApplied(tr) {
				tr.Instance, tr.Changed = before, changed
				return nil
			}
		}

	default:
		return NewError(ErrInvalidAction, fmt.Sprintf("unsupported action %T", action), nil, nil)
	}
	return nil
}

// CanComplete reports whether the order may be closed out as delivered.
func CanComplete(inst Instance) bool {
	return inst.Scenario.AllowsCompletionWithoutSignature() || inst.Ledger.HasSignature()
}

func requireActive(inst Instance) error {
	if !inst.Active() {
		return NewError(ErrNoActiveDelivery, "", nil, map[string]any{"delivery_id": inst.DeliveryID()})
	}
	return nil
}

func requireDelivery(inst Instance, id string) error {
	if err := requireActive(inst); err != nil {
		return err
	}
	if active := inst.DeliveryID(); strings.TrimSpace(id) != active {
		return NewError(ErrDeliveryMismatch,
			fmt.Sprintf("delivery %s is not the active delivery", id),
			nil, map[string]any{"delivery_id": id, "active_delivery_id": active})
	}
	return nil
}

func lastApplied(tr *Transition) bool {
	if len(tr.Completions) == 0 {
		return false
	}
	return tr.Completions[len(tr.Completions)-1].Applied
}

func countOrOne(n int) int {
	if n == 0 {
		return 1
	}
	return n
}
