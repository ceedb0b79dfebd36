// Package render dispatches the current delivery step to the renderer that
// performs it and feeds the single completion signal back into the store.
package render

import (
	"context"
	"sync"

	apperrors "github.com/goliatone/go-errors"

	doorstep "github.com/goliatone/go-doorstep"
)

const ErrCodeRenderFailed = "DELIVERY_RENDER_FAILED"

var ErrRenderFailed = apperrors.New("step render failed", apperrors.CategoryHandler).
	WithTextCode(ErrCodeRenderFailed)

// Dispatcher is the store surface renderers need.
type Dispatcher interface {
	Dispatch(ctx context.Context, action doorstep.Action) (doorstep.Transition, error)
	View() (doorstep.View, error)
}

// Renderer performs one step. It may finish synchronously or later, but it
// calls Request.Done at most once and only when the step's work succeeded.
type Renderer interface {
	Render(ctx context.Context, req *Request) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, req *Request) error

func (f RendererFunc) Render(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// Completion carries everything a finished step reports back. All of it is
// applied in one atomic batch together with the completion itself.
type Completion struct {
	Patch        doorstep.StatePatch
	MessagesSent int
	CallsMade    int
	// Reassign switches scenario after the step completes, e.g. findNeighbor
	// moving the delivery to neighborAccepts.
	Reassign doorstep.Scenario
}

// Request is handed to a renderer for the step it must perform.
type Request struct {
	Step doorstep.Step
	View doorstep.View

	dispatcher Dispatcher

	mu     sync.Mutex
	done   bool
	result doorstep.Transition
}

// NewRequest builds a request for the current step of view.
func NewRequest(view doorstep.View, dispatcher Dispatcher) *Request {
	return &Request{
		Step:       view.Current,
		View:       view,
		dispatcher: dispatcher,
	}
}

// DeliveryID of the delivery the step belongs to.
func (r *Request) DeliveryID() string {
	return r.View.Instance.DeliveryID()
}

// Trip returns the trip data of the delivery, nil when none is loaded.
func (r *Request) Trip() *doorstep.TripData {
	return r.View.Instance.Trip
}

// Done signals completion. Only the first successful call dispatches; later
// calls return its transition without touching the store. A failed dispatch
// leaves the request open so the renderer may signal again.
func (r *Request) Done(ctx context.Context, c Completion) (doorstep.Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return r.result, nil
	}
	tr, err := r.dispatcher.Dispatch(ctx, r.batch(c))
	if err != nil {
		return tr, err
	}
	r.done = true
	r.result = tr
	return tr, nil
}

// Completed reports whether Done has been called.
func (r *Request) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Request) batch(c Completion) doorstep.Action {
	actions := []doorstep.Action{doorstep.CompleteStep{Step: r.Step}}
	if !c.Patch.Empty() {
		actions = append(actions, doorstep.UpdateState{Patch: c.Patch})
	}
	if c.MessagesSent > 0 {
		actions = append(actions, doorstep.RecordMessage{Count: c.MessagesSent})
	}
	if c.CallsMade > 0 {
		actions = append(actions, doorstep.RecordCall{Count: c.CallsMade})
	}
	if c.Reassign != doorstep.ScenarioNone {
		actions = append(actions, doorstep.SetScenario{DeliveryID: r.DeliveryID(), Scenario: c.Reassign})
	}
	return doorstep.Batch{Actions: actions}
}
