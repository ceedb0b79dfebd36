package doorstep

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableValidates(t *testing.T) {
	table := DefaultTable()
	require.NoError(t, table.Validate())
	assert.Len(t, table, len(AllScenarios()))
	assert.ElementsMatch(t, AllSteps(), table.Steps())
}

func TestDefaultTableReturnsCopy(t *testing.T) {
	table := DefaultTable()
	table[ScenarioFoundCustomer][0] = Do(StepCollectRating)
	table[ScenarioNeighborAccepts][1].Branch.Actions[0] = StepCollectRating

	fresh := DefaultTable()
	assert.Equal(t, StepCaptureDoorstepImage, fresh[ScenarioFoundCustomer][0].Step)
	assert.Equal(t, StepGetNeighborDetails, fresh[ScenarioNeighborAccepts][1].Branch.Actions[0])
}

func TestTableValidateRejectsDefects(t *testing.T) {
	tests := []struct {
		name  string
		table Table
		code  string
	}{
		{"empty table", Table{}, ErrCodeInvalidTable},
		{"empty scenario", Table{ScenarioFoundCustomer: nil}, ErrCodeInvalidTable},
		{"invalid step", Table{ScenarioFoundCustomer: {Do(Step(42))}}, ErrCodeUnknownStep},
		{"unknown condition", Table{ScenarioFoundCustomer: {When("isRaining", StepNotifyCustomer)}}, ErrCodeUnknownCondition},
		{"empty branch", Table{ScenarioFoundCustomer: {When("neighborFound")}}, ErrCodeInvalidTable},
		{"duplicate bare step", Table{ScenarioFoundCustomer: {Do(StepNotifyCustomer), Do(StepNotifyCustomer)}}, ErrCodeInvalidTable},
		{
			"duplicate on branch path",
			Table{ScenarioFoundCustomer: {Do(StepNotifyCustomer), When("neighborFound", StepNotifyCustomer)}},
			ErrCodeInvalidTable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, ErrorCode(err))
		})
	}
}

// tableYAML renders the default table as an override document, with the
// scenarios named in replace swapped for the given entry lines.
func tableYAML(replace map[Scenario]string) []byte {
	def := DefaultTable()
	var b strings.Builder
	b.WriteString("scenarios:\n")
	for _, sc := range AllScenarios() {
		fmt.Fprintf(&b, "  %s:\n", sc)
		if custom, ok := replace[sc]; ok {
			b.WriteString(custom)
			continue
		}
		for _, e := range def[sc] {
			if e.Branch == nil {
				fmt.Fprintf(&b, "    - step: %s\n", e.Step)
				continue
			}
			names := make([]string, 0, len(e.Branch.Actions))
			for _, s := range e.Branch.Actions {
				names = append(names, s.String())
			}
			fmt.Fprintf(&b, "    - when: %s\n      then: [%s]\n", e.Branch.ConditionKey, strings.Join(names, ", "))
		}
	}
	return []byte(b.String())
}

func TestParseTableFromYAML(t *testing.T) {
	data := tableYAML(map[Scenario]string{
		ScenarioFoundCustomer: `    - step: capture-doorstep-image
    - when: customerResponded
      then: [captureParcelImage, captureCustomerSignature]
    - step: notifyCustomer
`,
		ScenarioOrderReturn: "    - step: captureParcelImage\n",
	})
	table, err := ParseTable(data)
	require.NoError(t, err)

	steps, err := table.Resolve(ScenarioFoundCustomer, DeliveryState{})
	require.NoError(t, err)
	assert.Equal(t, []Step{StepCaptureDoorstepImage, StepNotifyCustomer}, steps)

	steps, err = table.Resolve(ScenarioFoundCustomer, DeliveryState{CustomerResponded: true})
	require.NoError(t, err)
	assert.Equal(t, []Step{StepCaptureDoorstepImage, StepCaptureParcelImage, StepCaptureCustomerSignature}, steps)
}

func TestParseTableRejectsBadEntries(t *testing.T) {
	tests := map[string]string{
		"unknown scenario": "scenarios:\n  onTheMoon:\n    - step: notifyCustomer\n",
		"unknown step":     "scenarios:\n  foundCustomer:\n    - step: teleport\n",
		"step and when":    "scenarios:\n  foundCustomer:\n    - step: notifyCustomer\n      when: neighborFound\n",
		"empty entry":      "scenarios:\n  foundCustomer:\n    - {}\n",
		"unknown key":      "scenarios:\n  foundCustomer:\n    - when: isRaining\n      then: [notifyCustomer]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable([]byte(doc))
			require.Error(t, err)
			assert.True(t, IsConfigurationDefect(err), "got %v", err)
		})
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, tableYAML(map[Scenario]string{
		ScenarioHasPermit: "    - step: captureParcelImage\n",
	}), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	steps, err := table.Resolve(ScenarioHasPermit, DeliveryState{})
	require.NoError(t, err)
	assert.Equal(t, []Step{StepCaptureParcelImage}, steps)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, HasCode(err, ErrCodeInvalidTable))
}

func TestParseStepAndScenario(t *testing.T) {
	s, err := ParseStep("capture-customer-signature")
	require.NoError(t, err)
	assert.Equal(t, StepCaptureCustomerSignature, s)
	assert.True(t, s.IsSignature())

	_, err = ParseStep("teleport")
	assert.True(t, HasCode(err, ErrCodeUnknownStep))

	sc, err := ParseScenario("damagedParcel")
	require.NoError(t, err)
	assert.Equal(t, ScenarioDamagedParcel, sc)

	_, err = ParseScenario("onTheMoon")
	assert.True(t, HasCode(err, ErrCodeUnknownScenario))
}

func TestTableValidateRequiresEveryScenario(t *testing.T) {
	for _, missing := range []Scenario{ScenarioFoundCustomer, ScenarioHasPermit, ScenarioOrderReturn} {
		t.Run(missing.String(), func(t *testing.T) {
			table := DefaultTable()
			delete(table, missing)

			err := table.Validate()
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidTable, ErrorCode(err))
			assert.Contains(t, err.Error(), missing.String())
		})
	}
}

func TestParseTableRejectsOverrideWithoutSeedScenarios(t *testing.T) {
	_, err := ParseTable([]byte("scenarios:\n  orderReturn:\n    - step: captureParcelImage\n"))
	require.Error(t, err)
	assert.True(t, IsConfigurationDefect(err))
	assert.Equal(t, ErrCodeInvalidTable, ErrorCode(err))
}
