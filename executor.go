package doorstep

import "fmt"

// CompletionResult describes what a completion signal did.
type CompletionResult struct {
	Step       Step
	Applied    bool
	Duplicate  bool
	GateOpened bool
}

// Executor walks a resolved step sequence. The cursor is always derived from
// the ledger, so a rebuilt executor resumes at the first step not yet done.
type Executor struct {
	steps  []Step
	cursor int
}

// NewExecutor builds an executor over steps and seeks past completed work.
func NewExecutor(steps []Step, ledger Ledger) *Executor {
	e := &Executor{steps: append([]Step(nil), steps...)}
	e.Seek(ledger)
	return e
}

// Steps returns a copy of the resolved sequence.
func (e *Executor) Steps() []Step {
	return append([]Step(nil), e.steps...)
}

// Cursor returns the index of the current step, len(Steps) once exhausted.
func (e *Executor) Cursor() int {
	return e.cursor
}

// Current returns the step awaiting completion.
func (e *Executor) Current() (Step, bool) {
	if e.GateOpen() {
		return 0, false
	}
	return e.steps[e.cursor], true
}

// GateOpen reports that every resolved step is done and close-out may proceed.
func (e *Executor) GateOpen() bool {
	return e.cursor >= len(e.steps)
}

// Remaining returns the steps from the cursor onwards.
func (e *Executor) Remaining() []Step {
	if e.GateOpen() {
		return nil
	}
	return append([]Step(nil), e.steps[e.cursor:]...)
}

// Seek moves the cursor to the first step not marked done.
func (e *Executor) Seek(ledger Ledger) {
	e.cursor = 0
	e.skipDone(ledger)
}

// Advance moves past the current step and any following steps already done.
// It reports true when this call opened the completion gate.
func (e *Executor) Advance(ledger Ledger) bool {
	if e.GateOpen() {
		return false
	}
	e.cursor++
	e.skipDone(ledger)
	return e.GateOpen()
}

// Complete marks step done and advances, but only when step is the current
// one. A signal for a step already done is a duplicate and leaves ledger and
// cursor alone. A signal for a pending step that is not current is rejected
// so the work it reports is never dropped silently.
func (e *Executor) Complete(step Step, ledger Ledger) (Ledger, CompletionResult, error) {
	res := CompletionResult{Step: step}
	if ledger.IsDone(step) {
		res.Duplicate = true
		return ledger, res, nil
	}
	current, ok := e.Current()
	if !ok || current != step {
		meta := map[string]any{"step": step.String()}
		if ok {
			meta["current_step"] = current.String()
		}
		return ledger, res, NewError(ErrStepNotCurrent,
			fmt.Sprintf("step %s is not the current step", step), nil, meta)
	}
	next, _ := ledger.Mark(step)
	res.Applied = true
	res.GateOpened = e.Advance(next)
	return next, res, nil
}

func (e *Executor) skipDone(ledger Ledger) {
	for e.cursor < len(e.steps) && ledger.IsDone(e.steps[e.cursor]) {
		e.cursor++
	}
}
