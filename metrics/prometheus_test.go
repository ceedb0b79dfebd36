package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, r *PrometheusRecorder, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := r.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestPrometheusRecorderCounts(t *testing.T) {
	r, err := NewPrometheusRecorder("test")
	require.NoError(t, err)

	r.StepCompleted("captureParcelImage")
	r.StepCompleted("captureParcelImage")
	r.Mutation("delivery::complete_step", nil)
	r.Mutation("delivery::complete_step", errors.New("boom"))
	r.DeliveryFinalized("delivered")
	r.FinalizeFailed("returned")
	r.ConfigurationDefect("DELIVERY_UNKNOWN_CONDITION")
	r.FetchFailed()
	r.RecordDuration("finalize", 10*time.Millisecond)
	r.RecordSuccess("finalize")
	r.RecordError("finalize")

	assert.Equal(t, 2.0, counterValue(t, r, "test_steps_completed_total", map[string]string{"step": "captureParcelImage"}))
	assert.Equal(t, 1.0, counterValue(t, r, "test_mutations_total", map[string]string{"action": "delivery::complete_step", "result": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, r, "test_mutations_total", map[string]string{"action": "delivery::complete_step", "result": "error"}))
	assert.Equal(t, 1.0, counterValue(t, r, "test_deliveries_finalized_total", map[string]string{"outcome": "delivered"}))
	assert.Equal(t, 1.0, counterValue(t, r, "test_finalize_failures_total", map[string]string{"outcome": "returned"}))
	assert.Equal(t, 1.0, counterValue(t, r, "test_configuration_defects_total", map[string]string{"code": "DELIVERY_UNKNOWN_CONDITION"}))
	assert.Equal(t, 1.0, counterValue(t, r, "test_trip_fetch_failures_total", nil))
}

func TestNormalizeFallsBackToNop(t *testing.T) {
	assert.Equal(t, Nop{}, Normalize(nil))

	r, err := NewPrometheusRecorder("")
	require.NoError(t, err)
	assert.Same(t, r, Normalize(r))
}

func TestPrometheusRecorderHandlerServesMetrics(t *testing.T) {
	r, err := NewPrometheusRecorder("scrape")
	require.NoError(t, err)
	r.FetchFailed()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "scrape_trip_fetch_failures_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
