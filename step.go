package doorstep

import (
	"fmt"
	"strings"
)

// Step is one atomic compliance action a driver performs at the doorstep.
// The set is closed: values outside AllSteps are invalid.
type Step uint8

const (
	StepCaptureDoorstepImage Step = iota + 1
	StepCaptureParcelImage
	StepCaptureCustomerSignature
	StepCaptureNeighborSignature
	StepShowContactPrompt
	StepFindNeighbor
	StepGetNeighborDetails
	StepNotifyCustomer
	StepMarkNotDelivered
	StepReturnToWarehouse
	StepCollectRating
)

var stepNames = [...]string{
	StepCaptureDoorstepImage:     "captureDoorstepImage",
	StepCaptureParcelImage:       "captureParcelImage",
	StepCaptureCustomerSignature: "captureCustomerSignature",
	StepCaptureNeighborSignature: "captureNeighborSignature",
	StepShowContactPrompt:        "showContactPrompt",
	StepFindNeighbor:             "findNeighbor",
	StepGetNeighborDetails:       "getNeighborDetails",
	StepNotifyCustomer:           "notifyCustomer",
	StepMarkNotDelivered:         "markNotDelivered",
	StepReturnToWarehouse:        "returnToWarehouse",
	StepCollectRating:            "collectRating",
}

// AllSteps returns every known step in declaration order.
func AllSteps() []Step {
	out := make([]Step, 0, len(stepNames)-1)
	for s := StepCaptureDoorstepImage; s <= StepCollectRating; s++ {
		out = append(out, s)
	}
	return out
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s >= StepCaptureDoorstepImage && s <= StepCollectRating
}

func (s Step) String() string {
	if !s.Valid() {
		return fmt.Sprintf("step(%d)", uint8(s))
	}
	return stepNames[s]
}

// IsSignature reports whether the step captures a legally binding signature.
func (s Step) IsSignature() bool {
	return s == StepCaptureCustomerSignature || s == StepCaptureNeighborSignature
}

// ParseStep accepts the camelCase tag or its kebab-case form (capture-doorstep-image).
func ParseStep(name string) (Step, error) {
	key := normalizeTag(name)
	for _, s := range AllSteps() {
		if normalizeTag(stepNames[s]) == key {
			return s, nil
		}
	}
	return 0, NewError(ErrUnknownStep, fmt.Sprintf("unknown step %q", name), nil, map[string]any{"step": name})
}

func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, NewError(ErrUnknownStep, fmt.Sprintf("cannot encode %s", s.String()), nil, nil)
	}
	return []byte(stepNames[s]), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	parsed, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func normalizeTag(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("-", "", "_", "", " ", "").Replace(name)
	return strings.ToLower(name)
}
