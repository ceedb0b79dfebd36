package doorstep

import (
	"fmt"
	"sort"
)

// Branch expands into Actions only when the named DeliveryState fact is true.
type Branch struct {
	ConditionKey string
	Actions      []Step
}

// Entry is either a bare Step or a conditional Branch.
type Entry struct {
	Step   Step
	Branch *Branch
}

// Do builds an unconditional entry.
func Do(step Step) Entry {
	return Entry{Step: step}
}

// When builds a conditional entry.
func When(conditionKey string, actions ...Step) Entry {
	return Entry{Branch: &Branch{ConditionKey: conditionKey, Actions: append([]Step(nil), actions...)}}
}

// IsBranch reports whether e is conditional.
func (e Entry) IsBranch() bool {
	return e.Branch != nil
}

func (e Entry) String() string {
	if e.Branch == nil {
		return e.Step.String()
	}
	return fmt.Sprintf("when(%s)%v", e.Branch.ConditionKey, e.Branch.Actions)
}

// Table maps each scenario to its ordered entries.
type Table map[Scenario][]Entry

var defaultTable = Table{
	ScenarioFoundCustomer: {
		Do(StepCaptureDoorstepImage),
		Do(StepCaptureParcelImage),
		Do(StepCaptureCustomerSignature),
	},
	ScenarioCustomerNotFound: {
		Do(StepCaptureDoorstepImage),
		Do(StepShowContactPrompt),
		When("customerResponded", StepCaptureParcelImage, StepCaptureCustomerSignature),
		Do(StepFindNeighbor),
	},
	ScenarioNeighborAccepts: {
		Do(StepCaptureDoorstepImage),
		When("neighborFound",
			StepGetNeighborDetails,
			StepCaptureParcelImage,
			StepCaptureNeighborSignature,
			StepNotifyCustomer,
		),
	},
	ScenarioNoAcceptance: {
		Do(StepCaptureDoorstepImage),
		Do(StepMarkNotDelivered),
		Do(StepNotifyCustomer),
		Do(StepReturnToWarehouse),
	},
	ScenarioHasPermit: {
		Do(StepCaptureDoorstepImage),
		Do(StepCaptureParcelImage),
		Do(StepNotifyCustomer),
	},
	ScenarioDamagedParcel: {
		Do(StepCaptureParcelImage),
		Do(StepMarkNotDelivered),
		Do(StepReturnToWarehouse),
	},
	ScenarioOrderReturn: {
		Do(StepCaptureParcelImage),
		Do(StepCollectRating),
	},
}

// DefaultTable returns a copy of the authoritative scenario table.
func DefaultTable() Table {
	return defaultTable.Clone()
}

// Entries returns the entries for a scenario.
func (t Table) Entries(s Scenario) ([]Entry, error) {
	entries, ok := t[s]
	if !ok {
		return nil, NewError(
			ErrUnknownScenario,
			fmt.Sprintf("scenario %q has no table entry", s.String()),
			nil,
			map[string]any{"scenario": s.String()},
		)
	}
	return entries, nil
}

// Resolve is ResolveSteps over the entries of one scenario.
func (t Table) Resolve(s Scenario, state DeliveryState) ([]Step, error) {
	entries, err := t.Entries(s)
	if err != nil {
		return nil, err
	}
	return ResolveSteps(entries, state)
}

// Clone deep-copies the table.
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	out := make(Table, len(t))
	for sc, entries := range t {
		cp := make([]Entry, len(entries))
		for i, e := range entries {
			cp[i] = e
			if e.Branch != nil {
				cp[i] = When(e.Branch.ConditionKey, e.Branch.Actions...)
			}
		}
		out[sc] = cp
	}
	return out
}

// Steps returns every distinct step the table can ever produce, sorted.
func (t Table) Steps() []Step {
	seen := map[Step]bool{}
	for _, entries := range t {
		for _, e := range entries {
			if e.Branch == nil {
				seen[e.Step] = true
				continue
			}
			for _, s := range e.Branch.Actions {
				seen[s] = true
			}
		}
	}
	out := make([]Step, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate rejects tables that would leave a proof-of-delivery gap at runtime:
// unknown scenarios or steps, unknown condition keys, empty branches, any
// resolution path that repeats a step, and scenarios left without a sequence.
func (t Table) Validate() error {
	if len(t) == 0 {
		return NewError(ErrInvalidTable, "scenario table is empty", nil, nil)
	}
	for sc, entries := range t {
		meta := map[string]any{"scenario": sc.String()}
		if !sc.Valid() {
			return NewError(ErrInvalidTable, fmt.Sprintf("invalid scenario %s", sc.String()), nil, meta)
		}
		if len(entries) == 0 {
			return NewError(ErrInvalidTable, fmt.Sprintf("scenario %s has no entries", sc), nil, meta)
		}
		var bare []Step
		for idx, e := range entries {
			if e.Branch == nil {
				if !e.Step.Valid() {
					return NewError(ErrUnknownStep, fmt.Sprintf("scenario %s entry[%d] has invalid step", sc, idx), nil, meta)
				}
				bare = append(bare, e.Step)
				if err := checkDuplicates(bare); err != nil {
					return NewError(ErrInvalidTable, fmt.Sprintf("scenario %s: %v", sc, err), nil, meta)
				}
				continue
			}
			if !IsConditionKey(e.Branch.ConditionKey) {
				return NewError(
					ErrUnknownCondition,
					fmt.Sprintf("scenario %s entry[%d] references unknown condition %q", sc, idx, e.Branch.ConditionKey),
					nil,
					meta,
				)
			}
			if len(e.Branch.Actions) == 0 {
				return NewError(ErrInvalidTable, fmt.Sprintf("scenario %s entry[%d] branch has no actions", sc, idx), nil, meta)
			}
			for _, s := range e.Branch.Actions {
				if !s.Valid() {
					return NewError(ErrUnknownStep, fmt.Sprintf("scenario %s entry[%d] branch has invalid step", sc, idx), nil, meta)
				}
			}
			// a firing branch ends resolution, so its path is bare-so-far + actions
			path := append(append([]Step(nil), bare...), e.Branch.Actions...)
			if err := checkDuplicates(path); err != nil {
				return NewError(ErrInvalidTable, fmt.Sprintf("scenario %s entry[%d]: %v", sc, idx, err), nil, meta)
			}
		}
	}
	// any scenario can be seeded or assigned, so every one needs a sequence
	for _, sc := range AllScenarios() {
		if _, ok := t[sc]; !ok {
			return NewError(ErrInvalidTable, fmt.Sprintf("scenario %s is missing", sc), nil, map[string]any{"scenario": sc.String()})
		}
	}
	return nil
}

func checkDuplicates(steps []Step) error {
	seen := make(map[Step]bool, len(steps))
	for _, s := range steps {
		if seen[s] {
			return fmt.Errorf("step %s appears twice", s)
		}
		seen[s] = true
	}
	return nil
}
