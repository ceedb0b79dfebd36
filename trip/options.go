package trip

import (
	"time"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/metrics"
)

type Option func(*Orchestrator)

func WithFinalizer(f Finalizer) Option {
	return func(o *Orchestrator) {
		o.finalizer = f
	}
}

func WithAlertSink(s AlertSink) Option {
	return func(o *Orchestrator) {
		o.alerts = s
	}
}

func WithLogger(l doorstep.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFinalizeRetries sets how many times a failed finalization is retried.
func WithFinalizeRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.finalizeRetries = n
		}
	}
}

// WithRetryBackoff configures the exponential backoff between finalization retries.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(o *Orchestrator) {
		o.retryBase = base
		o.retryMax = max
	}
}
