package trip

import doorstep "github.com/goliatone/go-doorstep"

// Phase is the lifecycle position of the driver's current delivery.
type Phase string

const (
	PhaseNoActive   Phase = "no-active-delivery"
	PhaseInProgress Phase = "in-progress"
	PhaseClosedOut  Phase = "closed-out"
)

// PhaseOf derives the phase from an instance. Nothing is stored separately,
// so a rehydrated instance always lands in a consistent phase.
func PhaseOf(inst doorstep.Instance) Phase {
	id := inst.DeliveryID()
	switch {
	case id == "":
		return PhaseNoActive
	case inst.Outcomes.Contains(id):
		return PhaseClosedOut
	default:
		return PhaseInProgress
	}
}
