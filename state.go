package doorstep

import (
	"fmt"
	"sort"
	"strings"
)

// DeliveryState is the set of facts discovered during the current delivery attempt.
type DeliveryState struct {
	CustomerFoundAtLocation bool   `json:"customerFoundAtLocation" yaml:"customerFoundAtLocation"`
	CustomerResponded       bool   `json:"customerResponded" yaml:"customerResponded"`
	DriverReachedToLocation bool   `json:"driverReachedToLocation" yaml:"driverReachedToLocation"`
	NeighborFound           bool   `json:"neighborFound" yaml:"neighborFound"`
	NeighborAccepts         bool   `json:"neighborAccepts" yaml:"neighborAccepts"`
	NoAcceptance            bool   `json:"noAcceptance" yaml:"noAcceptance"`
	ParcelDamaged           bool   `json:"parcelDamaged" yaml:"parcelDamaged"`
	DeliveryReturnReason    string `json:"deliveryReturnReason,omitempty" yaml:"deliveryReturnReason,omitempty"`
	NeighborName            string `json:"neighborName,omitempty" yaml:"neighborName,omitempty"`
	NeighborAddress         string `json:"neighborAddress,omitempty" yaml:"neighborAddress,omitempty"`
}

// condition keys are the json field names of DeliveryState
var conditionReaders = map[string]func(DeliveryState) bool{
	"customerFoundAtLocation": func(s DeliveryState) bool { return s.CustomerFoundAtLocation },
	"customerResponded":       func(s DeliveryState) bool { return s.CustomerResponded },
	"driverReachedToLocation": func(s DeliveryState) bool { return s.DriverReachedToLocation },
	"neighborFound":           func(s DeliveryState) bool { return s.NeighborFound },
	"neighborAccepts":         func(s DeliveryState) bool { return s.NeighborAccepts },
	"noAcceptance":            func(s DeliveryState) bool { return s.NoAcceptance },
	"parcelDamaged":           func(s DeliveryState) bool { return s.ParcelDamaged },
	"deliveryReturnReason":    func(s DeliveryState) bool { return strings.TrimSpace(s.DeliveryReturnReason) != "" },
	"neighborName":            func(s DeliveryState) bool { return strings.TrimSpace(s.NeighborName) != "" },
	"neighborAddress":         func(s DeliveryState) bool { return strings.TrimSpace(s.NeighborAddress) != "" },
}

// ConditionKeys lists the field names a ConditionalBranch may reference.
func ConditionKeys() []string {
	keys := make([]string, 0, len(conditionReaders))
	for k := range conditionReaders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsConditionKey reports whether key names a DeliveryState field.
func IsConditionKey(key string) bool {
	_, ok := conditionReaders[key]
	return ok
}

// Condition evaluates a named fact. String facts are truthy when non-empty.
func (s DeliveryState) Condition(key string) (bool, error) {
	read, ok := conditionReaders[key]
	if !ok {
		return false, NewError(
			ErrUnknownCondition,
			fmt.Sprintf("condition key %q is not a delivery state field", key),
			nil,
			map[string]any{"condition_key": key},
		)
	}
	return read(s), nil
}

// StatePatch is a partial DeliveryState. Nil fields are left untouched on merge.
type StatePatch struct {
	CustomerFoundAtLocation *bool   `json:"customerFoundAtLocation,omitempty" yaml:"customerFoundAtLocation,omitempty"`
	CustomerResponded       *bool   `json:"customerResponded,omitempty" yaml:"customerResponded,omitempty"`
	DriverReachedToLocation *bool   `json:"driverReachedToLocation,omitempty" yaml:"driverReachedToLocation,omitempty"`
	NeighborFound           *bool   `json:"neighborFound,omitempty" yaml:"neighborFound,omitempty"`
	NeighborAccepts         *bool   `json:"neighborAccepts,omitempty" yaml:"neighborAccepts,omitempty"`
	NoAcceptance            *bool   `json:"noAcceptance,omitempty" yaml:"noAcceptance,omitempty"`
	ParcelDamaged           *bool   `json:"parcelDamaged,omitempty" yaml:"parcelDamaged,omitempty"`
	DeliveryReturnReason    *string `json:"deliveryReturnReason,omitempty" yaml:"deliveryReturnReason,omitempty"`
	NeighborName            *string `json:"neighborName,omitempty" yaml:"neighborName,omitempty"`
	NeighborAddress         *string `json:"neighborAddress,omitempty" yaml:"neighborAddress,omitempty"`
}

// Empty reports whether the patch carries no facts.
func (p StatePatch) Empty() bool {
	return p == StatePatch{}
}

// Merge returns a copy of s with every non-nil patch field applied.
func (s DeliveryState) Merge(p StatePatch) DeliveryState {
	out := s
	if p.CustomerFoundAtLocation != nil {
		out.CustomerFoundAtLocation = *p.CustomerFoundAtLocation
	}
	if p.CustomerResponded != nil {
		out.CustomerResponded = *p.CustomerResponded
	}
	if p.DriverReachedToLocation != nil {
		out.DriverReachedToLocation = *p.DriverReachedToLocation
	}
	if p.NeighborFound != nil {
		out.NeighborFound = *p.NeighborFound
	}
	if p.NeighborAccepts != nil {
		out.NeighborAccepts = *p.NeighborAccepts
	}
	if p.NoAcceptance != nil {
		out.NoAcceptance = *p.NoAcceptance
	}
	if p.ParcelDamaged != nil {
		out.ParcelDamaged = *p.ParcelDamaged
	}
	if p.DeliveryReturnReason != nil {
		out.DeliveryReturnReason = strings.TrimSpace(*p.DeliveryReturnReason)
	}
	if p.NeighborName != nil {
		out.NeighborName = strings.TrimSpace(*p.NeighborName)
	}
	if p.NeighborAddress != nil {
		out.NeighborAddress = strings.TrimSpace(*p.NeighborAddress)
	}
	return out
}

// Bool returns a pointer to v for building patches.
func Bool(v bool) *bool {
	return &v
}

// Text returns a pointer to v for building patches.
func Text(v string) *string {
	return &v
}
