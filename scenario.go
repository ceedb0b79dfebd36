package doorstep

import "fmt"

// Scenario names the branch of the delivery workflow currently active.
type Scenario uint8

const (
	ScenarioNone Scenario = iota
	ScenarioFoundCustomer
	ScenarioCustomerNotFound
	ScenarioHasPermit
	ScenarioNeighborAccepts
	ScenarioNoAcceptance
	ScenarioDamagedParcel
	ScenarioOrderReturn
)

var scenarioNames = [...]string{
	ScenarioNone:             "",
	ScenarioFoundCustomer:    "foundCustomer",
	ScenarioCustomerNotFound: "customerNotFound",
	ScenarioHasPermit:        "hasPermit",
	ScenarioNeighborAccepts:  "neighborAccepts",
	ScenarioNoAcceptance:     "noAcceptance",
	ScenarioDamagedParcel:    "damagedParcel",
	ScenarioOrderReturn:      "orderReturn",
}

// AllScenarios returns every assignable scenario.
func AllScenarios() []Scenario {
	out := make([]Scenario, 0, len(scenarioNames)-1)
	for s := ScenarioFoundCustomer; s <= ScenarioOrderReturn; s++ {
		out = append(out, s)
	}
	return out
}

// Valid reports whether s is an assignable scenario. ScenarioNone is not.
func (s Scenario) Valid() bool {
	return s >= ScenarioFoundCustomer && s <= ScenarioOrderReturn
}

func (s Scenario) String() string {
	if int(s) >= len(scenarioNames) {
		return fmt.Sprintf("scenario(%d)", uint8(s))
	}
	return scenarioNames[s]
}

// AllowsCompletionWithoutSignature reports the terminal scenarios whose
// close-out does not need a captured signature.
func (s Scenario) AllowsCompletionWithoutSignature() bool {
	switch s {
	case ScenarioHasPermit, ScenarioDamagedParcel, ScenarioOrderReturn:
		return true
	}
	return false
}

// ScenarioFor seeds the initial scenario of a freshly fetched delivery.
func ScenarioFor(trip TripData) Scenario {
	if trip.HasPermit {
		return ScenarioHasPermit
	}
	return ScenarioFoundCustomer
}

func ParseScenario(name string) (Scenario, error) {
	key := normalizeTag(name)
	for _, s := range AllScenarios() {
		if normalizeTag(scenarioNames[s]) == key {
			return s, nil
		}
	}
	return ScenarioNone, NewError(ErrUnknownScenario, fmt.Sprintf("unknown scenario %q", name), nil, map[string]any{"scenario": name})
}

func (s Scenario) MarshalText() ([]byte, error) {
	if s == ScenarioNone {
		return []byte{}, nil
	}
	if !s.Valid() {
		return nil, NewError(ErrUnknownScenario, fmt.Sprintf("cannot encode %s", s.String()), nil, nil)
	}
	return []byte(scenarioNames[s]), nil
}

func (s *Scenario) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = ScenarioNone
		return nil
	}
	parsed, err := ParseScenario(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
