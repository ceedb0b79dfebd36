package render

import (
	"context"
	"fmt"
	"strings"

	doorstep "github.com/goliatone/go-doorstep"
)

// Notification kinds.
const (
	KindContactPrompt  = "contact_prompt"
	KindCustomerUpdate = "customer_update"
)

// Notification is one outbound message about a delivery.
type Notification struct {
	DeliveryID string
	Kind       string
	Recipient  string
	Message    string
}

// Notifier sends notifications. Only success or failure matters to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier writes notifications to a logger instead of sending them.
type LogNotifier struct {
	Logger doorstep.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	doorstep.WithLoggerFields(doorstep.NormalizeLogger(l.Logger), map[string]any{
		"delivery_id": n.DeliveryID,
		"kind":        n.Kind,
		"recipient":   n.Recipient,
	}).Info("notification: %s", n.Message)
	return nil
}

// NotifyRenderer performs a step by sending one notification. The step
// completes only when the send succeeds.
type NotifyRenderer struct {
	notifier Notifier
	kind     string
	compose  func(req *Request) Notification
}

// NewCustomerNotifyRenderer serves notifyCustomer.
func NewCustomerNotifyRenderer(n Notifier) *NotifyRenderer {
	return &NotifyRenderer{notifier: n, kind: KindCustomerUpdate, compose: customerUpdate}
}

// NewContactPromptRenderer serves showContactPrompt. A sent prompt counts as
// one message towards the ledger.
func NewContactPromptRenderer(n Notifier) *NotifyRenderer {
	return &NotifyRenderer{notifier: n, kind: KindContactPrompt, compose: contactPrompt}
}

func (r *NotifyRenderer) Render(ctx context.Context, req *Request) error {
	n := r.compose(req)
	n.Kind = r.kind
	n.DeliveryID = req.DeliveryID()

	if err := r.notifier.Notify(ctx, n); err != nil {
		return doorstep.NewError(doorstep.ErrNotifyFailed, fmt.Sprintf("%s notification failed", r.kind), err, map[string]any{
			"delivery_id": n.DeliveryID,
			"step":        req.Step.String(),
		})
	}
	_, err := req.Done(ctx, Completion{MessagesSent: 1})
	return err
}

func recipient(req *Request) string {
	trip := req.Trip()
	if trip == nil {
		return ""
	}
	if trip.Phone != "" {
		return trip.Phone
	}
	return trip.Email
}

func customerUpdate(req *Request) Notification {
	inst := req.View.Instance
	var msg string
	switch inst.Scenario {
	case doorstep.ScenarioNeighborAccepts:
		name := strings.TrimSpace(inst.State.NeighborName)
		if name == "" {
			name = "a neighbour"
		}
		msg = fmt.Sprintf("Your parcel %s was left with %s", req.DeliveryID(), name)
		if addr := strings.TrimSpace(inst.State.NeighborAddress); addr != "" {
			msg += " at " + addr
		}
	case doorstep.ScenarioNoAcceptance:
		msg = fmt.Sprintf("We could not deliver parcel %s; it is going back to the warehouse", req.DeliveryID())
	case doorstep.ScenarioHasPermit:
		msg = fmt.Sprintf("Your parcel %s was left at the agreed place", req.DeliveryID())
	default:
		msg = fmt.Sprintf("Update on parcel %s", req.DeliveryID())
	}
	return Notification{Recipient: recipient(req), Message: msg}
}

func contactPrompt(req *Request) Notification {
	return Notification{
		Recipient: recipient(req),
		Message:   fmt.Sprintf("Your driver is at the door with parcel %s. Please get in touch.", req.DeliveryID()),
	}
}
