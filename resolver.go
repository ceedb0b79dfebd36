package doorstep

// ResolveSteps expands entries against state into the concrete step sequence.
//
// Bare steps are appended in order. The first branch whose condition is true
// appends its actions and ends resolution; later branches never fire even if
// their conditions also hold. A false branch is skipped. The function is pure:
// the store calls it again after every state change.
func ResolveSteps(entries []Entry, state DeliveryState) ([]Step, error) {
	out := make([]Step, 0, len(entries))
	for _, entry := range entries {
		if entry.Branch == nil {
			if !entry.Step.Valid() {
				return nil, NewError(ErrUnknownStep, "scenario entry has invalid step", nil, map[string]any{"step": entry.Step.String()})
			}
			out = append(out, entry.Step)
			continue
		}
		ok, err := state.Condition(entry.Branch.ConditionKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, step := range entry.Branch.Actions {
			if !step.Valid() {
				return nil, NewError(ErrUnknownStep, "conditional branch has invalid step", nil, map[string]any{
					"step":          step.String(),
					"condition_key": entry.Branch.ConditionKey,
				})
			}
		}
		out = append(out, entry.Branch.Actions...)
		break
	}
	return out, nil
}
