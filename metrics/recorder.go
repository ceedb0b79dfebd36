// Package metrics records delivery engine activity.
package metrics

import "time"

// Recorder is the metrics contract used across the engine.
type Recorder interface {
	RecordDuration(name string, duration time.Duration)
	RecordError(name string)
	RecordSuccess(name string)

	StepCompleted(step string)
	Mutation(action string, err error)
	DeliveryFinalized(outcome string)
	FinalizeFailed(outcome string)
	ConfigurationDefect(code string)
	FetchFailed()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordDuration(string, time.Duration) {}
func (Nop) RecordError(string)                   {}
func (Nop) RecordSuccess(string)                 {}
func (Nop) StepCompleted(string)                 {}
func (Nop) Mutation(string, error)               {}
func (Nop) DeliveryFinalized(string)             {}
func (Nop) FinalizeFailed(string)                {}
func (Nop) ConfigurationDefect(string)           {}
func (Nop) FetchFailed()                         {}

// Normalize returns r, or Nop when r is nil.
func Normalize(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
