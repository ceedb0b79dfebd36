package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder records into a private prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	durations      *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	successes      *prometheus.CounterVec
	steps          *prometheus.CounterVec
	mutations      *prometheus.CounterVec
	finalized      *prometheus.CounterVec
	finalizeFailed *prometheus.CounterVec
	defects        *prometheus.CounterVec
	fetchFailed    prometheus.Counter
}

// NewPrometheusRecorder registers every collector under namespace.
func NewPrometheusRecorder(namespace string) (*PrometheusRecorder, error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "doorstep"
	}
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed engine operations.",
		}, []string{"name"}),
		successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_success_total",
			Help:      "Successful engine operations.",
		}, []string{"name"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_completed_total",
			Help:      "Steps marked done in the completion ledger.",
		}, []string{"step"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Store mutations by action and result.",
		}, []string{"action", "result"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_finalized_total",
			Help:      "Deliveries archived into an outcome ledger.",
		}, []string{"outcome"}),
		finalizeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_failures_total",
			Help:      "Upstream finalization calls that failed after retries.",
		}, []string{"outcome"}),
		defects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "configuration_defects_total",
			Help:      "Configuration defects surfaced while resolving steps.",
		}, []string{"code"}),
		fetchFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trip_fetch_failures_total",
			Help:      "Failed trip fetches.",
		}),
	}

	own := []prometheus.Collector{
		r.durations, r.errors, r.successes, r.steps, r.mutations,
		r.finalized, r.finalizeFailed, r.defects, r.fetchFailed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range own {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return r, nil
}

// Registry exposes the underlying registry for gathering or HTTP exposition.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry for scraping.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (r *PrometheusRecorder) RecordDuration(name string, duration time.Duration) {
	r.durations.WithLabelValues(name).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordError(name string) {
	r.errors.WithLabelValues(name).Inc()
}

func (r *PrometheusRecorder) RecordSuccess(name string) {
	r.successes.WithLabelValues(name).Inc()
}

func (r *PrometheusRecorder) StepCompleted(step string) {
	r.steps.WithLabelValues(step).Inc()
}

func (r *PrometheusRecorder) Mutation(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.mutations.WithLabelValues(action, result).Inc()
}

func (r *PrometheusRecorder) DeliveryFinalized(outcome string) {
	r.finalized.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRecorder) FinalizeFailed(outcome string) {
	r.finalizeFailed.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRecorder) ConfigurationDefect(code string) {
	r.defects.WithLabelValues(code).Inc()
}

func (r *PrometheusRecorder) FetchFailed() {
	r.fetchFailed.Inc()
}
