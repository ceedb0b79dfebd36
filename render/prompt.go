package render

import (
	"context"
	"fmt"
	"io"
	"os"

	doorstep "github.com/goliatone/go-doorstep"
)

var instructions = map[doorstep.Step]string{
	doorstep.StepCaptureDoorstepImage:     "Take a photo of the doorstep",
	doorstep.StepCaptureParcelImage:       "Take a photo of the parcel",
	doorstep.StepCaptureCustomerSignature: "Collect the customer's signature",
	doorstep.StepCaptureNeighborSignature: "Collect the neighbour's signature",
	doorstep.StepShowContactPrompt:        "Try to reach the customer by call or message",
	doorstep.StepFindNeighbor:             "Look for a neighbour who can accept the parcel",
	doorstep.StepGetNeighborDetails:       "Record the neighbour's name and address",
	doorstep.StepNotifyCustomer:           "Notify the customer",
	doorstep.StepMarkNotDelivered:         "Mark the parcel as not delivered",
	doorstep.StepReturnToWarehouse:        "Bring the parcel back to the warehouse",
	doorstep.StepCollectRating:            "Ask the customer for a rating",
}

// Instruction returns the operator-facing text for step.
func Instruction(step doorstep.Step) string {
	if text, ok := instructions[step]; ok {
		return text
	}
	return step.String()
}

// PromptRenderer prints the instruction for a step and leaves it pending.
// Completion arrives later from outside, e.g. the CLI complete command.
type PromptRenderer struct {
	out io.Writer
}

func NewPromptRenderer(out io.Writer) *PromptRenderer {
	if out == nil {
		out = os.Stdout
	}
	return &PromptRenderer{out: out}
}

func (p *PromptRenderer) Render(_ context.Context, req *Request) error {
	_, err := fmt.Fprintf(p.out, "[%s] %d/%d %s: %s\n",
		req.DeliveryID(), req.View.Cursor+1, len(req.View.Steps), req.Step, Instruction(req.Step))
	return err
}

// DefaultRegistry registers notifier-backed renderers for the notification
// steps and prompt renderers for every other step.
func DefaultRegistry(out io.Writer, notifier Notifier) *Registry {
	reg := NewRegistry()
	prompt := NewPromptRenderer(out)
	for _, step := range doorstep.AllSteps() {
		switch step {
		case doorstep.StepNotifyCustomer:
			reg.MustRegister(step, NewCustomerNotifyRenderer(notifier))
		case doorstep.StepShowContactPrompt:
			reg.MustRegister(step, NewContactPromptRenderer(notifier))
		default:
			reg.MustRegister(step, prompt)
		}
	}
	return reg
}
