package doorstep

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TableConfig is the YAML/JSON shape of a scenario table override.
//
//	scenarios:
//	  foundCustomer:
//	    - step: captureDoorstepImage
//	    - when: customerResponded
//	      then: [captureParcelImage, captureCustomerSignature]
type TableConfig struct {
	Scenarios map[string][]EntryConfig `json:"scenarios" yaml:"scenarios"`
}

// EntryConfig holds either Step or When+Then.
type EntryConfig struct {
	Step string   `json:"step,omitempty" yaml:"step,omitempty"`
	When string   `json:"when,omitempty" yaml:"when,omitempty"`
	Then []string `json:"then,omitempty" yaml:"then,omitempty"`
}

// ParseTable decodes YAML (or JSON) into a validated Table.
func ParseTable(data []byte) (Table, error) {
	var cfg TableConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewError(ErrInvalidTable, "decode scenario table", err, nil)
	}
	return cfg.Build()
}

// LoadTable reads and parses a table file.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(ErrInvalidTable, "read scenario table", err, map[string]any{"path": path})
	}
	return ParseTable(data)
}

// Build converts the config into a Table and validates it.
func (c TableConfig) Build() (Table, error) {
	table := make(Table, len(c.Scenarios))
	for name, entries := range c.Scenarios {
		sc, err := ParseScenario(name)
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, len(entries))
		for idx, ec := range entries {
			entry, err := ec.build()
			if err != nil {
				return nil, NewError(ErrInvalidTable, fmt.Sprintf("scenario %s entry[%d]", name, idx), err, map[string]any{"scenario": name})
			}
			out = append(out, entry)
		}
		table[sc] = out
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func (c EntryConfig) build() (Entry, error) {
	step := strings.TrimSpace(c.Step)
	when := strings.TrimSpace(c.When)
	switch {
	case step != "" && when != "":
		return Entry{}, fmt.Errorf("entry sets both step and when")
	case step != "":
		s, err := ParseStep(step)
		if err != nil {
			return Entry{}, err
		}
		return Do(s), nil
	case when != "":
		actions := make([]Step, 0, len(c.Then))
		for _, name := range c.Then {
			s, err := ParseStep(name)
			if err != nil {
				return Entry{}, err
			}
			actions = append(actions, s)
		}
		return When(when, actions...), nil
	default:
		return Entry{}, fmt.Errorf("entry requires step or when")
	}
}
