package doorstep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableResolution(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name     string
		scenario Scenario
		state    DeliveryState
		want     []Step
	}{
		{
			name:     "found customer",
			scenario: ScenarioFoundCustomer,
			want:     []Step{StepCaptureDoorstepImage, StepCaptureParcelImage, StepCaptureCustomerSignature},
		},
		{
			name:     "customer not found without response",
			scenario: ScenarioCustomerNotFound,
			want:     []Step{StepCaptureDoorstepImage, StepShowContactPrompt, StepFindNeighbor},
		},
		{
			name:     "customer not found then responded",
			scenario: ScenarioCustomerNotFound,
			state:    DeliveryState{CustomerResponded: true},
			want: []Step{
				StepCaptureDoorstepImage, StepShowContactPrompt,
				StepCaptureParcelImage, StepCaptureCustomerSignature,
			},
		},
		{
			name:     "neighbor accepts before neighbor found",
			scenario: ScenarioNeighborAccepts,
			want:     []Step{StepCaptureDoorstepImage},
		},
		{
			name:     "neighbor accepts after neighbor found",
			scenario: ScenarioNeighborAccepts,
			state:    DeliveryState{NeighborFound: true},
			want: []Step{
				StepCaptureDoorstepImage, StepGetNeighborDetails, StepCaptureParcelImage,
				StepCaptureNeighborSignature, StepNotifyCustomer,
			},
		},
		{
			name:     "no acceptance",
			scenario: ScenarioNoAcceptance,
			want:     []Step{StepCaptureDoorstepImage, StepMarkNotDelivered, StepNotifyCustomer, StepReturnToWarehouse},
		},
		{
			name:     "has permit",
			scenario: ScenarioHasPermit,
			want:     []Step{StepCaptureDoorstepImage, StepCaptureParcelImage, StepNotifyCustomer},
		},
		{
			name:     "damaged parcel",
			scenario: ScenarioDamagedParcel,
			want:     []Step{StepCaptureParcelImage, StepMarkNotDelivered, StepReturnToWarehouse},
		},
		{
			name:     "order return",
			scenario: ScenarioOrderReturn,
			want:     []Step{StepCaptureParcelImage, StepCollectRating},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Resolve(tt.scenario, tt.state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveStepsIsPure(t *testing.T) {
	entries := []Entry{
		Do(StepCaptureDoorstepImage),
		When("customerResponded", StepCaptureParcelImage),
	}
	state := DeliveryState{CustomerResponded: true}

	first, err := ResolveSteps(entries, state)
	require.NoError(t, err)
	second, err := ResolveSteps(entries, state)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, DeliveryState{CustomerResponded: true}, state)
	assert.Len(t, entries, 2)
	assert.Equal(t, []Step{StepCaptureParcelImage}, entries[1].Branch.Actions)
}

func TestResolveStepsFirstMatchWins(t *testing.T) {
	entries := []Entry{
		Do(StepCaptureDoorstepImage),
		When("neighborFound", StepGetNeighborDetails),
		When("customerResponded", StepCaptureParcelImage),
		Do(StepNotifyCustomer),
	}

	got, err := ResolveSteps(entries, DeliveryState{NeighborFound: true, CustomerResponded: true})
	require.NoError(t, err)
	assert.Equal(t, []Step{StepCaptureDoorstepImage, StepGetNeighborDetails}, got)

	got, err = ResolveSteps(entries, DeliveryState{CustomerResponded: true})
	require.NoError(t, err)
	assert.Equal(t, []Step{StepCaptureDoorstepImage, StepCaptureParcelImage}, got)

	got, err = ResolveSteps(entries, DeliveryState{})
	require.NoError(t, err)
	assert.Equal(t, []Step{StepCaptureDoorstepImage, StepNotifyCustomer}, got)
}

func TestResolveStepsStringFactsAreTruthyWhenSet(t *testing.T) {
	entries := []Entry{When("neighborName", StepGetNeighborDetails)}

	got, err := ResolveSteps(entries, DeliveryState{NeighborName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, []Step{StepGetNeighborDetails}, got)

	got, err = ResolveSteps(entries, DeliveryState{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveStepsUnknownConditionIsConfigurationDefect(t *testing.T) {
	entries := []Entry{
		Do(StepCaptureDoorstepImage),
		When("customerFoundAtMoon", StepCaptureParcelImage),
	}

	got, err := ResolveSteps(entries, DeliveryState{})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, HasCode(err, ErrCodeUnknownCondition))
	assert.True(t, IsConfigurationDefect(err))
}

func TestResolveStepsUnknownStep(t *testing.T) {
	_, err := ResolveSteps([]Entry{Do(Step(99))}, DeliveryState{})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeUnknownStep))
}

func TestTableEntriesUnknownScenario(t *testing.T) {
	_, err := DefaultTable().Resolve(ScenarioNone, DeliveryState{})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeUnknownScenario))
}
