package doorstep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustReduce(t *testing.T, table Table, inst Instance, action Action) Instance {
	t.Helper()
	tr, err := Reduce(table, inst, action)
	require.NoError(t, err, "action %s", action.Type())
	return tr.Instance
}

func startedInstance(t *testing.T, trip TripData) Instance {
	t.Helper()
	return mustReduce(t, DefaultTable(), NewInstance(), StartDelivery{Trip: trip})
}

func TestReduceStartDeliverySeedsScenario(t *testing.T) {
	table := DefaultTable()

	inst := mustReduce(t, table, NewInstance(), StartDelivery{Trip: TripData{DeliveryID: "D-1"}})
	assert.Equal(t, ScenarioFoundCustomer, inst.Scenario)
	assert.Equal(t, 1, inst.Generation)
	assert.Equal(t, "D-1", inst.DeliveryID())
	assert.True(t, inst.Active())

	inst = mustReduce(t, table, inst, RecordOutcome{Kind: OutcomeReturned, DeliveryID: "D-1", Reason: "closed"})
	inst = mustReduce(t, table, inst, StartDelivery{Trip: TripData{DeliveryID: "D-2", HasPermit: true}})
	assert.Equal(t, ScenarioHasPermit, inst.Scenario)
	assert.Equal(t, 2, inst.Generation)
	assert.Equal(t, []string{"D-1"}, inst.Outcomes.Returned, "outcome ledgers survive a new delivery")
	assert.Empty(t, inst.Ledger.Completed())
}

func TestReduceStartDeliveryRejectsArchivedID(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	inst = mustReduce(t, table, inst, RecordOutcome{Kind: OutcomeDelivered, DeliveryID: "D-1"})

	_, err := Reduce(table, inst, StartDelivery{Trip: TripData{DeliveryID: "D-1"}})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDeliveryMismatch))
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	before := inst.Clone()

	_, err := Reduce(table, inst, Batch{Actions: []Action{
		CompleteStep{Step: StepCaptureDoorstepImage},
		UpdateState{Patch: StatePatch{NeighborFound: Bool(true)}},
		RecordMessage{},
	}})
	require.NoError(t, err)
	assert.Equal(t, before, inst)
}

func TestReduceSetScenarioPreservesLedger(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	inst = mustReduce(t, table, inst, CompleteStep{Step: StepCaptureDoorstepImage})
	inst = mustReduce(t, table, inst, CompleteStep{Step: StepCaptureParcelImage})

	inst = mustReduce(t, table, inst, SetScenario{DeliveryID: "D-1", Scenario: ScenarioNoAcceptance})
	assert.Equal(t, ScenarioNoAcceptance, inst.Scenario)
	assert.True(t, inst.Ledger.IsDone(StepCaptureDoorstepImage))
	assert.True(t, inst.Ledger.IsDone(StepCaptureParcelImage))

	view, err := Resolve(table, inst)
	require.NoError(t, err)
	assert.Equal(t, StepMarkNotDelivered, view.Current, "cursor re-seeks past steps already done")
}

func TestReduceSetScenarioRejectsOtherDelivery(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})

	_, err := Reduce(table, inst, SetScenario{DeliveryID: "D-9", Scenario: ScenarioHasPermit})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDeliveryMismatch))

	_, err = Reduce(table, NewInstance(), SetScenario{DeliveryID: "D-1", Scenario: ScenarioHasPermit})
	assert.True(t, HasCode(err, ErrCodeNoActiveDelivery))
}

func TestReduceSetScenarioMissingFromTable(t *testing.T) {
	table := Table{ScenarioFoundCustomer: {Do(StepCaptureParcelImage)}}
	inst := mustReduce(t, table, NewInstance(), StartDelivery{Trip: TripData{DeliveryID: "D-1"}})

	_, err := Reduce(table, inst, SetScenario{DeliveryID: "D-1", Scenario: ScenarioOrderReturn})
	require.Error(t, err)
	assert.True(t, IsConfigurationDefect(err))
}

func TestReduceCompleteStepIdempotent(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})

	tr, err := Reduce(table, inst, CompleteStep{Step: StepCaptureDoorstepImage})
	require.NoError(t, err)
	require.True(t, tr.Changed)
	inst = tr.Instance

	tr, err = Reduce(table, inst, CompleteStep{Step: StepCaptureDoorstepImage})
	require.NoError(t, err)
	assert.False(t, tr.Changed)
	require.Len(t, tr.Completions, 1)
	assert.True(t, tr.Completions[0].Duplicate)
	assert.Equal(t, inst.Ledger, tr.Instance.Ledger)

	view, err := Resolve(table, tr.Instance)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Cursor)
}

func TestReduceCompleteStepWithoutScenario(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	inst = mustReduce(t, table, inst, Reset{})

	_, err := Reduce(table, inst, CompleteStep{Step: StepCaptureDoorstepImage})
	assert.True(t, HasCode(err, ErrCodeUnknownScenario))
}

func TestReduceBatchIsAtomic(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})

	tr, err := Reduce(table, inst, Batch{Actions: []Action{
		UpdateState{Patch: StatePatch{CustomerFoundAtLocation: Bool(true)}},
		SetScenario{DeliveryID: "D-404", Scenario: ScenarioHasPermit},
	}})
	require.Error(t, err)
	assert.False(t, tr.Instance.State.CustomerFoundAtLocation, "failed batch keeps the previous instance")

	_, err = Reduce(table, inst, Batch{})
	assert.True(t, HasCode(err, ErrCodeInvalidAction))
}

func TestReduceBatchKeepsEveryFact(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	inst = mustReduce(t, table, inst, SetScenario{DeliveryID: "D-1", Scenario: ScenarioNeighborAccepts})
	inst = mustReduce(t, table, inst, CompleteStep{Step: StepCaptureDoorstepImage})
	inst = mustReduce(t, table, inst, UpdateState{Patch: StatePatch{NeighborFound: Bool(true)}})

	inst = mustReduce(t, table, inst, Batch{Actions: []Action{
		UpdateState{Patch: StatePatch{NeighborName: Text("Ada"), NeighborAddress: Text("Flat 2")}},
		CompleteStep{Step: StepGetNeighborDetails},
	}})
	assert.Equal(t, "Ada", inst.State.NeighborName)
	assert.Equal(t, "Flat 2", inst.State.NeighborAddress)
	assert.True(t, inst.State.NeighborFound)
	assert.True(t, inst.Ledger.IsDone(StepGetNeighborDetails))
}

func TestReduceRecordOutcomeExclusive(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})

	tr, err := Reduce(table, inst, RecordOutcome{Kind: OutcomeDelivered, DeliveryID: "D-1"})
	require.NoError(t, err)
	inst = tr.Instance
	assert.True(t, inst.SuccessFlash)
	assert.False(t, inst.Active())

	tr, err = Reduce(table, inst, RecordOutcome{Kind: OutcomeReturned, DeliveryID: "D-1", Reason: "late"})
	require.NoError(t, err)
	assert.True(t, tr.Duplicate)
	assert.False(t, tr.Changed)
	assert.Equal(t, []string{"D-1"}, tr.Instance.Outcomes.Delivered)
	assert.Empty(t, tr.Instance.Outcomes.Returned)

	tr, err = Reduce(table, inst, RecordOutcome{Kind: OutcomeDelivered, DeliveryID: "D-1"})
	require.NoError(t, err)
	assert.True(t, tr.Duplicate)
	assert.Len(t, tr.Instance.Outcomes.Delivered, 1)
}

func TestReduceRecordOutcomeForeignID(t *testing.T) {
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	_, err := Reduce(DefaultTable(), inst, RecordOutcome{Kind: OutcomeDelivered, DeliveryID: "D-2"})
	assert.True(t, HasCode(err, ErrCodeDeliveryMismatch))
}

func TestReduceCounters(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	inst = mustReduce(t, table, inst, RecordMessage{})
	inst = mustReduce(t, table, inst, RecordMessage{Count: 2})
	inst = mustReduce(t, table, inst, RecordCall{})
	assert.Equal(t, 3, inst.Ledger.MessagesSent)
	assert.Equal(t, 1, inst.Ledger.CallsMade)

	_, err := Reduce(table, inst, RecordCall{Count: -1})
	assert.True(t, HasCode(err, ErrCodeInvalidAction))
}

func TestReduceResetKeepsOutcomesAndGeneration(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	inst = mustReduce(t, table, inst, CompleteStep{Step: StepCaptureDoorstepImage})
	inst = mustReduce(t, table, inst, UpdateState{Patch: StatePatch{ParcelDamaged: Bool(true)}})

	inst = mustReduce(t, table, inst, Reset{})
	assert.Equal(t, ScenarioNone, inst.Scenario)
	assert.Equal(t, DeliveryState{}, inst.State)
	assert.Empty(t, inst.Ledger.Completed())
	assert.Equal(t, 1, inst.Generation)
	assert.Equal(t, "D-1", inst.DeliveryID())
}

func TestReduceRejectsConfigurationDefectAfterStateChange(t *testing.T) {
	table := Table{ScenarioFoundCustomer: {Do(StepCaptureDoorstepImage), When("neighborFound", Step(77))}}
	inst := mustReduce(t, table, NewInstance(), StartDelivery{Trip: TripData{DeliveryID: "D-1"}})

	tr, err := Reduce(table, inst, UpdateState{Patch: StatePatch{NeighborFound: Bool(true)}})
	require.Error(t, err)
	assert.True(t, IsConfigurationDefect(err))
	assert.False(t, tr.Instance.State.NeighborFound)
}

func TestCanComplete(t *testing.T) {
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	assert.False(t, CanComplete(inst))

	inst.Ledger, _ = inst.Ledger.Mark(StepCaptureCustomerSignature)
	assert.True(t, CanComplete(inst))

	for _, sc := range []Scenario{ScenarioHasPermit, ScenarioDamagedParcel, ScenarioOrderReturn} {
		assert.True(t, CanComplete(Instance{Scenario: sc, Ledger: NewLedger()}), sc.String())
	}
	assert.False(t, CanComplete(Instance{Scenario: ScenarioNoAcceptance, Ledger: NewLedger()}))
}

func TestEndToEndFoundCustomerOpensGate(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})

	view, err := Resolve(table, inst)
	require.NoError(t, err)
	assert.Equal(t, foundCustomerSteps, view.Steps)

	for _, step := range foundCustomerSteps {
		assert.False(t, view.GateOpen)
		assert.Equal(t, step, view.Current)
		inst = mustReduce(t, table, inst, CompleteStep{Step: step})
		view, err = Resolve(table, inst)
		require.NoError(t, err)
	}
	assert.True(t, view.GateOpen)
	assert.False(t, view.HasStep)
	assert.True(t, CanComplete(inst))
}

func TestEndToEndReassignToNeighborAccepts(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	inst = mustReduce(t, table, inst, SetScenario{DeliveryID: "D-1", Scenario: ScenarioCustomerNotFound})
	inst = mustReduce(t, table, inst, CompleteStep{Step: StepCaptureDoorstepImage})
	inst = mustReduce(t, table, inst, CompleteStep{Step: StepShowContactPrompt})

	view, err := Resolve(table, inst)
	require.NoError(t, err)
	require.Equal(t, StepFindNeighbor, view.Current)

	inst = mustReduce(t, table, inst, Batch{Actions: []Action{
		UpdateState{Patch: StatePatch{NeighborFound: Bool(true)}},
		CompleteStep{Step: StepFindNeighbor},
	}})
	inst = mustReduce(t, table, inst, SetScenario{DeliveryID: "D-1", Scenario: ScenarioNeighborAccepts})

	view, err = Resolve(table, inst)
	require.NoError(t, err)
	assert.Contains(t, view.Steps, StepGetNeighborDetails)
	assert.Contains(t, view.Steps, StepCaptureNeighborSignature)
	assert.NotContains(t, view.Steps, StepCaptureCustomerSignature)
	assert.Equal(t, StepGetNeighborDetails, view.Current)
}

func TestEndToEndResumeFromSnapshot(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	inst = mustReduce(t, table, inst, CompleteStep{Step: StepCaptureDoorstepImage})

	restored := inst.Snapshot().Instance()
	view, err := Resolve(table, restored)
	require.NoError(t, err)
	assert.Equal(t, StepCaptureParcelImage, view.Current)
	assert.Equal(t, 1, view.Cursor)
}

func TestReduceDuplicateCompletionVoidsBatch(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})
	inst = mustReduce(t, table, inst, SetScenario{DeliveryID: "D-1", Scenario: ScenarioCustomerNotFound})
	inst = mustReduce(t, table, inst, CompleteStep{Step: StepCaptureDoorstepImage})

	signal := Batch{Actions: []Action{
		CompleteStep{Step: StepShowContactPrompt},
		RecordMessage{Count: 1},
	}}
	inst = mustReduce(t, table, inst, signal)
	require.Equal(t, 1, inst.Ledger.MessagesSent)

	tr, err := Reduce(table, inst, signal)
	require.NoError(t, err)
	assert.False(t, tr.Changed)
	assert.Equal(t, 1, tr.Instance.Ledger.MessagesSent)
	require.Len(t, tr.Completions, 1)
	assert.True(t, tr.Completions[0].Duplicate)
}

func TestReduceCompleteStepRejectsPendingNonCurrent(t *testing.T) {
	table := DefaultTable()
	inst := startedInstance(t, TripData{DeliveryID: "D-1"})

	tr, err := Reduce(table, inst, CompleteStep{Step: StepCaptureCustomerSignature})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeStepNotCurrent))
	assert.False(t, tr.Instance.Ledger.IsDone(StepCaptureCustomerSignature))
}
