package doorstep

import (
	"strings"
	"time"
)

// TripData is what the upstream trip collaborator returns for one delivery.
type TripData struct {
	DeliveryID string         `json:"deliveryId" yaml:"deliveryId"`
	HasPermit  bool           `json:"hasPermit" yaml:"hasPermit"`
	Client     string         `json:"client,omitempty" yaml:"client,omitempty"`
	Model      string         `json:"model,omitempty" yaml:"model,omitempty"`
	Quantity   int            `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Address    string         `json:"address,omitempty" yaml:"address,omitempty"`
	Phone      string         `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email      string         `json:"email,omitempty" yaml:"email,omitempty"`
	Extra      map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Clone copies the trip including Extra.
func (t *TripData) Clone() *TripData {
	if t == nil {
		return nil
	}
	cp := *t
	if len(t.Extra) > 0 {
		cp.Extra = make(map[string]any, len(t.Extra))
		for k, v := range t.Extra {
			cp.Extra[k] = v
		}
	}
	return &cp
}

// Instance is the full live working set for one delivery attempt.
type Instance struct {
	Scenario   Scenario
	State      DeliveryState
	Ledger     Ledger
	Trip       *TripData
	Generation int
	Outcomes   Outcomes

	// SuccessFlash drives the completion confirmation and is never persisted.
	SuccessFlash bool
}

// NewInstance returns an empty instance with a defaulted ledger.
func NewInstance() Instance {
	return Instance{Ledger: NewLedger()}
}

// DeliveryID returns the active delivery id, empty when no trip is loaded.
func (i Instance) DeliveryID() string {
	if i.Trip == nil {
		return ""
	}
	return strings.TrimSpace(i.Trip.DeliveryID)
}

// Active reports a loaded delivery that has not been archived into an outcome ledger.
func (i Instance) Active() bool {
	id := i.DeliveryID()
	return id != "" && !i.Outcomes.Contains(id)
}

// Clone deep-copies the instance.
func (i Instance) Clone() Instance {
	out := i
	out.Ledger = i.Ledger.Clone()
	out.Trip = i.Trip.Clone()
	out.Outcomes = i.Outcomes.Clone()
	return out
}

// Snapshot is the persisted subset of an Instance.
type Snapshot struct {
	Scenario   Scenario      `json:"scenario"`
	State      DeliveryState `json:"deliveryState"`
	Ledger     Ledger        `json:"ledger"`
	Trip       *TripData     `json:"tripData,omitempty"`
	Outcomes   Outcomes      `json:"outcomes"`
	Generation int           `json:"instanceGeneration"`
	Version    int           `json:"version"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Snapshot extracts the durable subset. Version and UpdatedAt are left for the storage layer.
func (i Instance) Snapshot() *Snapshot {
	c := i.Clone()
	return &Snapshot{
		Scenario:   c.Scenario,
		State:      c.State,
		Ledger:     c.Ledger,
		Trip:       c.Trip,
		Outcomes:   c.Outcomes,
		Generation: c.Generation,
	}
}

// Instance rebuilds a working instance from persisted data. Transient fields start at zero.
func (s *Snapshot) Instance() Instance {
	if s == nil {
		return NewInstance()
	}
	inst := Instance{
		Scenario:   s.Scenario,
		State:      s.State,
		Ledger:     s.Ledger,
		Trip:       s.Trip,
		Outcomes:   s.Outcomes,
		Generation: s.Generation,
	}
	return inst.Clone()
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Ledger = s.Ledger.Clone()
	cp.Trip = s.Trip.Clone()
	cp.Outcomes = s.Outcomes.Clone()
	return &cp
}

// View is the read model handed to renderers and the CLI.
type View struct {
	Instance Instance
	Steps    []Step
	Cursor   int
	Current  Step
	HasStep  bool
	GateOpen bool
}

// Resolve derives the step sequence and cursor for inst.
func Resolve(table Table, inst Instance) (View, error) {
	view := View{Instance: inst.Clone()}
	if inst.Scenario == ScenarioNone || !inst.Active() {
		return view, nil
	}
	steps, err := table.Resolve(inst.Scenario, inst.State)
	if err != nil {
		return view, err
	}
	exec := NewExecutor(steps, inst.Ledger)
	view.Steps = exec.Steps()
	view.Cursor = exec.Cursor()
	view.Current, view.HasStep = exec.Current()
	view.GateOpen = exec.GateOpen()
	return view, nil
}
