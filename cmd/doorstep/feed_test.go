package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/config"
	"github.com/goliatone/go-doorstep/trip"
)

type staticSource struct {
	inst doorstep.Instance
}

func (s staticSource) Instance() doorstep.Instance { return s.inst }

func writeFeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trips.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
trips:
  - deliveryId: D-1
    hasPermit: true
    client: Ms Weber
    phone: "+49 30 1234"
  - deliveryId: D-2
    hasPermit: false
  - deliveryId: D-3
`), 0o600))
	return path
}

func TestFeedFetcherSkipsArchivedAndActive(t *testing.T) {
	path := writeFeed(t)

	got, err := newFeedFetcher(path, staticSource{inst: doorstep.NewInstance()}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "D-1", got.DeliveryID)
	assert.True(t, got.HasPermit)
	assert.Equal(t, "Ms Weber", got.Client)

	inst := doorstep.NewInstance()
	inst.Trip = &doorstep.TripData{DeliveryID: "D-2"}
	inst.Outcomes, _ = inst.Outcomes.Record(doorstep.OutcomeDelivered, "D-1", "")

	got, err = newFeedFetcher(path, staticSource{inst: inst}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "D-3", got.DeliveryID)
}

func TestFeedFetcherExhausted(t *testing.T) {
	path := writeFeed(t)

	inst := doorstep.NewInstance()
	for _, id := range []string{"D-1", "D-2", "D-3"} {
		inst.Outcomes, _ = inst.Outcomes.Record(doorstep.OutcomeReturned, id, "closed")
	}
	_, err := newFeedFetcher(path, staticSource{inst: inst}).Fetch(context.Background())
	assert.ErrorContains(t, err, "no pending deliveries")
}

func TestFeedFetcherRequiresPath(t *testing.T) {
	_, err := newFeedFetcher("", staticSource{}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestParsePatch(t *testing.T) {
	patch, err := parsePatch(map[string]string{
		"customerResponded": "true",
		"neighborName":      "Ms Okafor",
	})
	require.NoError(t, err)
	require.NotNil(t, patch.CustomerResponded)
	assert.True(t, *patch.CustomerResponded)
	require.NotNil(t, patch.NeighborName)
	assert.Equal(t, "Ms Okafor", *patch.NeighborName)
	assert.Nil(t, patch.ParcelDamaged)
}

func TestParsePatchRejectsUnknownKey(t *testing.T) {
	_, err := parsePatch(map[string]string{"customerHappy": "true"})
	require.Error(t, err)
	assert.True(t, doorstep.HasCode(err, doorstep.ErrCodeUnknownCondition))
}

func TestParsePatchRejectsBadBool(t *testing.T) {
	_, err := parsePatch(map[string]string{"parcelDamaged": "maybe"})
	assert.Error(t, err)
}

func TestParsePatchEmpty(t *testing.T) {
	patch, err := parsePatch(nil)
	require.NoError(t, err)
	assert.True(t, patch.Empty())
}

func TestAppResumesDeliveryFromFileStorage(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverFile
	cfg.Storage.Path = filepath.Join(dir, "state")
	cfg.TripsFile = writeFeed(t)
	cfg.Logging.Level = "error"
	ctx := context.Background()

	var out, logs bytes.Buffer
	first, err := newApp(cfg, &out, &logs)
	require.NoError(t, err)
	phase, err := first.orch.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, trip.PhaseInProgress, phase)
	require.NoError(t, first.Close(ctx))

	second, err := newApp(cfg, &out, &logs)
	require.NoError(t, err)
	defer second.Close(ctx)
	require.NoError(t, second.store.Open(ctx))

	inst := second.store.Instance()
	assert.Equal(t, "D-1", inst.DeliveryID())
	assert.Equal(t, doorstep.ScenarioHasPermit, inst.Scenario)
}

func TestPrintStatus(t *testing.T) {
	inst := doorstep.NewInstance()
	inst.Trip = &doorstep.TripData{DeliveryID: "D-7"}
	inst.Outcomes, _ = inst.Outcomes.Record(doorstep.OutcomeDelivered, "D-6", "")
	view := doorstep.View{
		Instance: inst,
		Steps:    []doorstep.Step{doorstep.StepCaptureDoorstepImage},
		HasStep:  true,
	}

	var out bytes.Buffer
	printStatus(&out, view, trip.PhaseInProgress)

	assert.Contains(t, out.String(), "delivery:  D-7")
	assert.Contains(t, out.String(), "[>] captureDoorstepImage")
	assert.Contains(t, out.String(), "delivered: D-6")
	assert.Contains(t, out.String(), "returned:  -")
}
