package doorstep

import (
	"fmt"
	"strings"
)

// Action is a mutation request for the delivery reducer. The set is closed;
// every mutation of an Instance goes through one of these.
type Action interface {
	Type() string
	Validate() error
	action()
}

// StartDelivery replaces the working set with a freshly fetched trip.
type StartDelivery struct {
	Trip TripData
}

// SetScenario reassigns the active scenario without touching the ledger.
type SetScenario struct {
	DeliveryID string
	Scenario   Scenario
}

// UpdateState merges new facts into the delivery state.
type UpdateState struct {
	Patch StatePatch
}

// CompleteStep is the completion signal a renderer sends for the step it rendered.
type CompleteStep struct {
	Step Step
}

// RecordMessage bumps the messages-sent counter.
type RecordMessage struct {
	Count int
}

// RecordCall bumps the calls-made counter.
type RecordCall struct {
	Count int
}

// RecordOutcome archives a delivery id into one of the outcome ledgers.
type RecordOutcome struct {
	Kind       OutcomeKind
	DeliveryID string
	Reason     string
}

// ClearFlash drops the transient success confirmation.
type ClearFlash struct{}

// Reset clears scenario, state and ledger of the active delivery.
type Reset struct{}

// Batch applies several actions atomically and in order. When a completion
// in the batch is a duplicate, nothing in the batch applies.
type Batch struct {
	Actions []Action
}

func (StartDelivery) Type() string { return "delivery::start" }
func (SetScenario) Type() string   { return "delivery::set_scenario" }
func (UpdateState) Type() string   { return "delivery::update_state" }
func (CompleteStep) Type() string  { return "delivery::complete_step" }
func (RecordMessage) Type() string { return "delivery::record_message" }
func (RecordCall) Type() string    { return "delivery::record_call" }
func (RecordOutcome) Type() string { return "delivery::record_outcome" }
func (ClearFlash) Type() string    { return "delivery::clear_flash" }
func (Reset) Type() string         { return "delivery::reset" }
func (Batch) Type() string         { return "delivery::batch" }

func (StartDelivery) action() {}
func (SetScenario) action()   {}
func (UpdateState) action()   {}
func (CompleteStep) action()  {}
func (RecordMessage) action() {}
func (RecordCall) action()    {}
func (RecordOutcome) action() {}
func (ClearFlash) action()    {}
func (Reset) action()         {}
func (Batch) action()         {}

func (a StartDelivery) Validate() error {
	if strings.TrimSpace(a.Trip.DeliveryID) == "" {
		return invalidAction(a, "trip delivery id is required")
	}
	return nil
}

func (a SetScenario) Validate() error {
	if strings.TrimSpace(a.DeliveryID) == "" {
		return invalidAction(a, "delivery id is required")
	}
	if !a.Scenario.Valid() {
		return NewError(ErrUnknownScenario, fmt.Sprintf("cannot assign %s", a.Scenario), nil, map[string]any{"action": a.Type()})
	}
	return nil
}

func (a UpdateState) Validate() error {
	if a.Patch.Empty() {
		return invalidAction(a, "state patch is empty")
	}
	return nil
}

func (a CompleteStep) Validate() error {
	if !a.Step.Valid() {
		return NewError(ErrUnknownStep, fmt.Sprintf("cannot complete %s", a.Step), nil, map[string]any{"action": a.Type()})
	}
	return nil
}

func (a RecordMessage) Validate() error {
	if a.Count < 0 {
		return invalidAction(a, "count must not be negative")
	}
	return nil
}

func (a RecordCall) Validate() error {
	if a.Count < 0 {
		return invalidAction(a, "count must not be negative")
	}
	return nil
}

func (a RecordOutcome) Validate() error {
	if strings.TrimSpace(a.DeliveryID) == "" {
		return invalidAction(a, "delivery id is required")
	}
	if a.Kind != OutcomeDelivered && a.Kind != OutcomeReturned {
		return invalidAction(a, fmt.Sprintf("unknown outcome %q", a.Kind))
	}
	return nil
}

func (ClearFlash) Validate() error { return nil }
func (Reset) Validate() error      { return nil }

func (a Batch) Validate() error {
	if len(a.Actions) == 0 {
		return invalidAction(a, "batch is empty")
	}
	for idx, act := range a.Actions {
		if act == nil {
			return invalidAction(a, fmt.Sprintf("batch action[%d] is nil", idx))
		}
		if err := act.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func invalidAction(a Action, message string) error {
	return NewError(ErrInvalidAction, message, nil, map[string]any{"action": a.Type()})
}
